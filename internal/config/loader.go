package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"

	"github.com/parrotlabs/parrot/pkg/realtime"
	"github.com/parrotlabs/parrot/pkg/respond"
)

// ValidBackendNames lists known backend names per backend kind.
// Used by [Validate] to warn about unrecognised backend names.
var ValidBackendNames = map[string][]string{
	"vad":         {"energy"},
	"transcriber": {"scripted"},
}

// ValidIntentNames lists the intents the conversation tracker can detect.
var ValidIntentNames = []string{
	respond.IntentGreeting,
	respond.IntentFarewell,
	respond.IntentHelpRequest,
	respond.IntentQuestion,
	respond.IntentComplaint,
	respond.IntentGratitude,
	respond.IntentConfirmation,
	respond.IntentDenial,
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Session defaults
	for _, m := range cfg.Session.Modalities {
		if m != "text" && m != "audio" {
			errs = append(errs, fmt.Errorf("session.modalities value %q is invalid; valid values: text, audio", m))
		}
	}
	if td := cfg.Session.TurnDetection; td != nil {
		if td.Type != "" && td.Type != realtime.TurnDetectionServerVAD && td.Type != realtime.TurnDetectionNone {
			errs = append(errs, fmt.Errorf("session.turn_detection.type %q is invalid; valid values: server_vad, none", td.Type))
		}
		if td.Threshold < 0 || td.Threshold > 1 {
			errs = append(errs, fmt.Errorf("session.turn_detection.threshold %.2f is out of range [0, 1]", td.Threshold))
		}
	}

	// Backend name validation — warn for unknown backend names.
	validateBackendName("vad", cfg.Backends.VAD.Name)
	validateBackendName("transcriber", cfg.Backends.Transcriber.Name)

	if cfg.Backends.Transcriber.Name == "scripted" && len(cfg.Backends.Transcriber.Script) == 0 {
		slog.Warn("backends.transcriber is \"scripted\" but script is empty; every transcription will fail")
	}
	if td := cfg.Session.TurnDetection; td != nil && td.Type == realtime.TurnDetectionServerVAD && cfg.Backends.VAD.Name == "" {
		slog.Warn("session.turn_detection is server_vad but backends.vad is not configured; speech events will not be emitted")
	}

	// Template duplicate key detection
	keysSeen := make(map[string]int, len(cfg.Templates))

	// Templates
	for i, tmpl := range cfg.Templates {
		prefix := fmt.Sprintf("templates[%d]", i)
		if tmpl.Key == "" {
			errs = append(errs, fmt.Errorf("%s.key is required", prefix))
		} else {
			if prev, ok := keysSeen[tmpl.Key]; ok {
				errs = append(errs, fmt.Errorf("%s.key %q is a duplicate of templates[%d]", prefix, tmpl.Key, prev))
			}
			keysSeen[tmpl.Key] = i
		}
		errs = append(errs, validateTemplate(prefix, tmpl)...)
	}
	if cfg.Fallback != nil {
		errs = append(errs, validateTemplate("fallback", *cfg.Fallback)...)
		if cfg.Fallback.Criteria != nil {
			slog.Warn("fallback.criteria is ignored; the fallback answers whenever no template matches")
		}
	}

	warnNearDuplicateKeywords(cfg.Templates)

	return errors.Join(errs...)
}

// validateTemplate checks one template block and returns its errors.
func validateTemplate(prefix string, tmpl TemplateConfig) []error {
	var errs []error

	if tmpl.CharDelayMS < 0 {
		errs = append(errs, fmt.Errorf("%s.char_delay_ms %d is negative", prefix, tmpl.CharDelayMS))
	}
	if tmpl.ChunkDelayMS < 0 {
		errs = append(errs, fmt.Errorf("%s.chunk_delay_ms %d is negative", prefix, tmpl.ChunkDelayMS))
	}
	if tmpl.FunctionCall != nil && tmpl.FunctionCall.Name == "" {
		errs = append(errs, fmt.Errorf("%s.function_call.name is required", prefix))
	}

	c := tmpl.Criteria
	if c == nil {
		return errs
	}
	if c.MinTurns != nil && *c.MinTurns < 0 {
		errs = append(errs, fmt.Errorf("%s.criteria.min_turns %d is negative", prefix, *c.MinTurns))
	}
	if c.MaxTurns != nil && *c.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("%s.criteria.max_turns %d is negative", prefix, *c.MaxTurns))
	}
	if c.MinTurns != nil && c.MaxTurns != nil && *c.MinTurns > *c.MaxTurns {
		errs = append(errs, fmt.Errorf("%s.criteria: min_turns %d exceeds max_turns %d", prefix, *c.MinTurns, *c.MaxTurns))
	}
	for _, m := range c.RequiredModalities {
		if m != "text" && m != "audio" {
			errs = append(errs, fmt.Errorf("%s.criteria.required_modalities value %q is invalid; valid values: text, audio", prefix, m))
		}
	}
	for _, intent := range c.RequiredIntents {
		if !slices.Contains(ValidIntentNames, intent) {
			slog.Warn("unknown intent in template criteria — it will never match",
				"template", tmpl.Key,
				"intent", intent,
				"known", ValidIntentNames,
			)
		}
	}
	// Broken patterns are skipped at selection time; surface them here so
	// the author finds out before the template silently under-scores.
	for _, pattern := range c.ContextPatterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			slog.Warn("invalid context pattern — it will be ignored during selection",
				"template", tmpl.Key,
				"pattern", pattern,
				"err", err,
			)
		}
	}
	return errs
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// warnNearDuplicateKeywords flags required keywords across templates that
// differ by at most one edit. These usually mean a typo in one template is
// quietly diverting traffic to another.
func warnNearDuplicateKeywords(templates []TemplateConfig) {
	type keywordRef struct {
		template string
		keyword  string
	}
	var refs []keywordRef
	for _, tmpl := range templates {
		if tmpl.Criteria == nil {
			continue
		}
		for _, kw := range tmpl.Criteria.RequiredKeywords {
			refs = append(refs, keywordRef{template: tmpl.Key, keyword: strings.ToLower(kw)})
		}
	}

	for i := 0; i < len(refs); i++ {
		for j := i + 1; j < len(refs); j++ {
			a, b := refs[i], refs[j]
			if a.template == b.template || a.keyword == b.keyword {
				continue
			}
			if matchr.Levenshtein(a.keyword, b.keyword) <= 1 {
				slog.Warn("near-duplicate required keywords across templates — possible typo",
					"keyword", a.keyword,
					"template", a.template,
					"similar", b.keyword,
					"other_template", b.template,
				)
			}
		}
	}
}
