package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/parrotlabs/parrot/pkg/provider/transcribe"
	"github.com/parrotlabs/parrot/pkg/provider/transcribe/scripted"
	"github.com/parrotlabs/parrot/pkg/provider/vad"
	"github.com/parrotlabs/parrot/pkg/provider/vad/energy"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions for each
// backend kind. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	vad         map[string]func(VADBackendConfig) (vad.Engine, error)
	transcriber map[string]func(TranscriberBackendConfig) (transcribe.Engine, error)
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:         make(map[string]func(VADBackendConfig) (vad.Engine, error)),
		transcriber: make(map[string]func(TranscriberBackendConfig) (transcribe.Engine, error)),
	}
}

// DefaultRegistry returns a [Registry] pre-seeded with the built-in
// backends: the "energy" speech detector and the "scripted" transcriber.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterVAD("energy", func(VADBackendConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	r.RegisterTranscriber("scripted", func(cfg TranscriberBackendConfig) (transcribe.Engine, error) {
		return scripted.New(cfg.Script), nil
	})
	return r
}

// RegisterVAD registers a speech-activity engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory func(VADBackendConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterTranscriber registers a transcription engine factory under name.
func (r *Registry) RegisterTranscriber(name string, factory func(TranscriberBackendConfig) (transcribe.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// CreateVAD instantiates a speech-activity engine using the factory
// registered under cfg.Name. Returns nil with no error when cfg.Name is
// empty, meaning the capability is disabled.
func (r *Registry) CreateVAD(cfg VADBackendConfig) (vad.Engine, error) {
	if cfg.Name == "" {
		return nil, nil
	}
	r.mu.RLock()
	factory, ok := r.vad[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrBackendNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateTranscriber instantiates a transcription engine using the factory
// registered under cfg.Name. Returns nil with no error when cfg.Name is
// empty, meaning the capability is disabled.
func (r *Registry) CreateTranscriber(cfg TranscriberBackendConfig) (transcribe.Engine, error) {
	if cfg.Name == "" {
		return nil, nil
	}
	r.mu.RLock()
	factory, ok := r.transcriber[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber/%q", ErrBackendNotRegistered, cfg.Name)
	}
	return factory(cfg)
}
