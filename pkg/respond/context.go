package respond

import (
	"sort"
	"strings"
	"time"
)

// Turn kinds recorded in the conversation history.
const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Kind      string
	Text      string
	Intents   []string
	Timestamp time.Time
}

// Context is the evolving per-session conversation state the Selector scores
// against. It is mutated only by the session orchestrator when new inbound
// content arrives and is read-only to the selection engine.
//
// Context is not safe for concurrent use; the orchestrator owns it and
// serialises access through its own event-processing discipline.
type Context struct {
	// LastUtterance is the most recent inbound utterance text. Empty means
	// no utterance has been observed yet.
	LastUtterance string

	// Turns is the ordered conversation history, oldest first.
	Turns []Turn

	// Intents is the set of intents detected across the conversation.
	Intents map[string]bool

	// PreferredModalities is the modality preference accumulated from
	// response requests, used when a request carries no explicit modalities.
	PreferredModalities []string

	// PendingFunctionCall records that the last response request carried
	// tool/function intent.
	PendingFunctionCall bool
}

// NewContext returns an empty conversation context.
func NewContext() *Context {
	return &Context{Intents: make(map[string]bool)}
}

// ObserveUtterance records an inbound user utterance: it becomes the last
// utterance, its detected intents join the intent set, and a user turn is
// appended to the history.
func (c *Context) ObserveUtterance(text string, ts time.Time) {
	intents := DetectIntents(text)

	c.LastUtterance = text
	if c.Intents == nil {
		c.Intents = make(map[string]bool)
	}
	for _, in := range intents {
		c.Intents[in] = true
	}
	c.Turns = append(c.Turns, Turn{
		Kind:      TurnUser,
		Text:      text,
		Intents:   intents,
		Timestamp: ts,
	})
}

// ObserveResponse records a generated assistant turn.
func (c *Context) ObserveResponse(text string, ts time.Time) {
	c.Turns = append(c.Turns, Turn{
		Kind:      TurnAssistant,
		Text:      text,
		Timestamp: ts,
	})
}

// TurnCount returns the number of turns recorded so far.
func (c *Context) TurnCount() int { return len(c.Turns) }

// IntentList returns the detected intents sorted alphabetically.
func (c *Context) IntentList() []string {
	out := make([]string, 0, len(c.Intents))
	for in := range c.Intents {
		out = append(out, in)
	}
	sort.Strings(out)
	return out
}

// matchText returns the text context patterns are matched against: the last
// utterance followed by the space-joined detected intents.
func (c *Context) matchText() string {
	parts := append([]string{c.LastUtterance}, c.IntentList()...)
	return strings.Join(parts, " ")
}

// Intent bucket names produced by DetectIntents.
const (
	IntentGreeting     = "greeting"
	IntentFarewell     = "farewell"
	IntentHelpRequest  = "help_request"
	IntentQuestion     = "question"
	IntentComplaint    = "complaint"
	IntentGratitude    = "gratitude"
	IntentConfirmation = "confirmation"
	IntentDenial       = "denial"
)

// intentBuckets maps each intent to the keywords that trigger it. Matching is
// done over the lowercased utterance; several buckets may fire at once.
var intentBuckets = []struct {
	intent   string
	keywords []string
}{
	{IntentGreeting, []string{"hello", "hi ", "hey", "good morning", "good afternoon", "good evening"}},
	{IntentFarewell, []string{"bye", "goodbye", "see you", "farewell", "later"}},
	{IntentHelpRequest, []string{"help", "assist", "support", "how do i", "how can i"}},
	{IntentQuestion, []string{"what", "when", "where", "who", "why", "how", "?"}},
	{IntentComplaint, []string{"problem", "issue", "wrong", "broken", "not working", "complaint"}},
	{IntentGratitude, []string{"thanks", "thank you", "appreciate", "grateful"}},
	{IntentConfirmation, []string{"yes", "yeah", "sure", "correct", "right", "ok", "okay"}},
	{IntentDenial, []string{"no ", "nope", "not ", "never", "incorrect"}},
}

// DetectIntents classifies an utterance into zero or more intent buckets
// using fixed keyword matching over the lowercased text.
func DetectIntents(utterance string) []string {
	if utterance == "" {
		return nil
	}
	lower := strings.ToLower(utterance)
	// Pad so that keywords with trailing spaces ("no ", "hi ") also match at
	// the end of the utterance.
	padded := lower + " "

	var intents []string
	for _, bucket := range intentBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(padded, kw) {
				intents = append(intents, bucket.intent)
				break
			}
		}
	}
	return intents
}
