package respond_test

import (
	"slices"
	"testing"
	"time"

	"github.com/parrotlabs/parrot/pkg/respond"
)

func TestDetectIntents(t *testing.T) {
	tests := []struct {
		utterance string
		want      []string
	}{
		{"", nil},
		{"Hello there", []string{respond.IntentGreeting}},
		{"goodbye and thanks", []string{respond.IntentFarewell, respond.IntentGratitude}},
		{"what is broken?", []string{respond.IntentQuestion, respond.IntentComplaint}},
		{"yes that is correct", []string{respond.IntentConfirmation}},
		{"no, never", []string{respond.IntentDenial}},
		{"can you help me", []string{respond.IntentHelpRequest}},
	}
	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			got := respond.DetectIntents(tt.utterance)
			for _, w := range tt.want {
				if !slices.Contains(got, w) {
					t.Errorf("DetectIntents(%q) = %v, missing %q", tt.utterance, got, w)
				}
			}
			if tt.want == nil && got != nil {
				t.Errorf("DetectIntents(%q) = %v, want none", tt.utterance, got)
			}
		})
	}
}

func TestContext_ObserveUtterance(t *testing.T) {
	c := respond.NewContext()
	c.ObserveUtterance("hello, can you help me?", time.Now())

	if c.LastUtterance != "hello, can you help me?" {
		t.Errorf("LastUtterance = %q", c.LastUtterance)
	}
	if c.TurnCount() != 1 {
		t.Errorf("TurnCount = %d, want 1", c.TurnCount())
	}
	for _, intent := range []string{respond.IntentGreeting, respond.IntentHelpRequest, respond.IntentQuestion} {
		if !c.Intents[intent] {
			t.Errorf("intent %q not recorded; have %v", intent, c.IntentList())
		}
	}

	c.ObserveResponse("Of course.", time.Now())
	if c.TurnCount() != 2 {
		t.Errorf("TurnCount = %d after response, want 2", c.TurnCount())
	}
	if c.Turns[1].Kind != respond.TurnAssistant {
		t.Errorf("turn kind = %q, want assistant", c.Turns[1].Kind)
	}
}

func TestContext_IntentsAccumulate(t *testing.T) {
	c := respond.NewContext()
	c.ObserveUtterance("hello", time.Now())
	c.ObserveUtterance("this is broken", time.Now())

	if !c.Intents[respond.IntentGreeting] || !c.Intents[respond.IntentComplaint] {
		t.Errorf("intents = %v, want greeting and complaint retained", c.IntentList())
	}
	if c.LastUtterance != "this is broken" {
		t.Errorf("LastUtterance = %q, want most recent", c.LastUtterance)
	}
}
