// Package respond holds the canned response templates of the parrot
// simulator and the context-aware selection engine that picks among them.
//
// A Template is a named, preconfigured response: literal text, an optional
// audio source, an optional function call, and per-delta pacing. Templates
// optionally carry a Criteria block; the Selector scores every registered
// template against the current conversation Context and returns the best
// match. Templates are immutable once registered.
package respond

import (
	"fmt"
	"sync"
	"time"
)

// FunctionCall describes a simulated tool invocation attached to a template.
type FunctionCall struct {
	// Name is the function name reported on the wire.
	Name string

	// Arguments is the structured argument object, JSON-encoded when streamed.
	Arguments map[string]any
}

// AudioSource is the audio payload of a template. Data takes precedence over
// Path; when both are empty the generator falls back to silence.
type AudioSource struct {
	// Data is a raw PCM16 payload used verbatim.
	Data []byte

	// Path is a file reference resolved through the audio cache.
	Path string
}

// Template is one named canned response.
type Template struct {
	// Key uniquely identifies the template within a registry.
	Key string

	// Text is the literal response text. May be empty.
	Text string

	// Audio optionally supplies the audio payload for audio modality.
	Audio *AudioSource

	// FunctionCall optionally declares a tool call this template produces.
	FunctionCall *FunctionCall

	// CharDelay is the pause after each streamed text character.
	CharDelay time.Duration

	// ChunkDelay is the pause after each streamed audio chunk.
	ChunkDelay time.Duration

	// Criteria constrains when this template may be selected. Nil means the
	// template competes with base priority 0 and no constraints.
	Criteria *Criteria
}

// Criteria is the selection constraint block of a template. Every field is
// optional; an absent constraint is always satisfied and earns no bonus.
type Criteria struct {
	// RequiredKeywords must all appear in the last utterance.
	RequiredKeywords []string

	// ExcludedKeywords reject the template when any appears in the last
	// utterance.
	ExcludedKeywords []string

	// RequiredIntents must all be present in the detected-intents set.
	RequiredIntents []string

	// MinTurns / MaxTurns bound the conversation turn count. Nil means
	// unbounded on that side.
	MinTurns *int
	MaxTurns *int

	// RequiredModalities must all be present in the requested modalities.
	RequiredModalities []string

	// RequiresFunctionCall is tri-state: nil means indifferent, true demands
	// function-call intent in the request, false demands its absence.
	RequiresFunctionCall *bool

	// ContextPatterns are case-insensitive regular expressions matched
	// against the last utterance joined with the detected intents.
	ContextPatterns []string

	// Priority is the base score the template starts from.
	Priority float64
}

// Registry is an insertion-ordered collection of templates. Scoring iterates
// in registration order, which makes the "first maximum wins" tie-break
// deterministic.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]Template
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Template)}
}

// Register adds a template. Re-registering an existing key replaces the
// template in place, keeping its original position in iteration order.
// Returns an error if the key is empty.
func (r *Registry) Register(t Template) error {
	if t.Key == "" {
		return fmt.Errorf("respond: template key must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[t.Key]; !ok {
		r.order = append(r.order, t.Key)
	}
	r.byKey[t.Key] = t
	return nil
}

// Get returns the template registered under key.
func (r *Registry) Get(key string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKey[key]
	return t, ok
}

// Keys returns all template keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Remove deletes the template registered under key. Unknown keys are a no-op.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[key]; !ok {
		return
	}
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
