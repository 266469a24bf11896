package respond

import (
	"regexp"
	"slices"
	"strings"
)

// Soft bonus weights applied by Score. Any unmet required constraint hard
// rejects the template to a score of exactly 0 instead.
const (
	bonusKeywords     = 10
	bonusIntents      = 15
	bonusModalities   = 5
	bonusFunctionCall = 8
	bonusPattern      = 12
	bonusWordOverlap  = 3
)

// Options carries the per-request inputs to selection: the modalities the
// client asked for and whether the request expressed tool/function intent.
type Options struct {
	Modalities   []string
	FunctionCall bool
}

// Selector scores every template in a Registry against a conversation
// Context and picks the highest scorer.
type Selector struct {
	reg *Registry
}

// NewSelector returns a Selector over reg.
func NewSelector(reg *Registry) *Selector {
	return &Selector{reg: reg}
}

// Select returns the key of the best-matching template, or ok=false if no
// template scores above zero. Equal top scores resolve to the template
// registered first.
func (s *Selector) Select(c *Context, opts Options) (string, bool) {
	var (
		bestKey   string
		bestScore float64
	)
	for _, key := range s.reg.Keys() {
		t, ok := s.reg.Get(key)
		if !ok {
			continue
		}
		score := s.Score(t, c, opts)
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	if bestScore <= 0 {
		return "", false
	}
	return bestKey, true
}

// Score computes the selection score of one template. The score starts at
// the criteria's base priority; soft bonuses stack additively, while any
// violated required or excluded constraint short-circuits to exactly 0.
func (s *Selector) Score(t Template, c *Context, opts Options) float64 {
	cr := t.Criteria
	if cr == nil {
		// No criteria: base priority 0, no constraints, and only the
		// criteria-independent word-overlap bonus can apply.
		cr = &Criteria{}
	}
	score := cr.Priority

	utterance := strings.ToLower(c.LastUtterance)

	// Hard constraints first: a single miss rejects the template outright.
	for _, kw := range cr.ExcludedKeywords {
		if kw != "" && strings.Contains(utterance, strings.ToLower(kw)) {
			return 0
		}
	}

	if len(cr.RequiredKeywords) > 0 {
		for _, kw := range cr.RequiredKeywords {
			if !strings.Contains(utterance, strings.ToLower(kw)) {
				return 0
			}
		}
		score += bonusKeywords
	}

	if len(cr.RequiredIntents) > 0 {
		for _, in := range cr.RequiredIntents {
			if !c.Intents[in] {
				return 0
			}
		}
		score += bonusIntents
	}

	turns := c.TurnCount()
	if cr.MinTurns != nil && turns < *cr.MinTurns {
		return 0
	}
	if cr.MaxTurns != nil && turns > *cr.MaxTurns {
		return 0
	}

	modalities := opts.Modalities
	if len(modalities) == 0 {
		modalities = c.PreferredModalities
	}
	if len(cr.RequiredModalities) > 0 {
		for _, m := range cr.RequiredModalities {
			if !slices.Contains(modalities, m) {
				return 0
			}
		}
		score += bonusModalities
	}

	if cr.RequiresFunctionCall != nil {
		wantsFn := opts.FunctionCall || c.PendingFunctionCall
		if *cr.RequiresFunctionCall != wantsFn {
			return 0
		}
		score += bonusFunctionCall
	}

	// Soft-only signals below: a miss costs nothing.
	if len(cr.ContextPatterns) > 0 {
		haystack := c.matchText()
		for _, pat := range cr.ContextPatterns {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				// Invalid patterns are flagged at config load; skip here.
				continue
			}
			if re.MatchString(haystack) {
				score += bonusPattern
				break
			}
		}
	}

	if wordOverlap(t.Text, c.LastUtterance) {
		score += bonusWordOverlap
	}

	return score
}

// wordOverlap reports whether a and b share any whole word or one contains
// the other, case-insensitively.
func wordOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}
	words := make(map[string]bool)
	for _, w := range strings.Fields(la) {
		words[strings.Trim(w, ".,!?;:'\"")] = true
	}
	for _, w := range strings.Fields(lb) {
		if words[strings.Trim(w, ".,!?;:'\"")] {
			return true
		}
	}
	return false
}
