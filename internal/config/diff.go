package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	TemplatesChanged bool           // true if any template was added, removed, or modified
	TemplateChanges  []TemplateDiff // per-template diffs
	FallbackChanged  bool
	LogLevelChanged  bool
	NewLogLevel      LogLevel
}

// TemplateDiff describes what changed for a single template between two configs.
type TemplateDiff struct {
	Key      string
	Modified bool
	Added    bool
	Removed  bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Fallback template
	if !reflect.DeepEqual(old.Fallback, new.Fallback) {
		d.FallbackChanged = true
	}

	// Build template lookup maps keyed by template key.
	oldTmpls := make(map[string]*TemplateConfig, len(old.Templates))
	for i := range old.Templates {
		oldTmpls[old.Templates[i].Key] = &old.Templates[i]
	}
	newTmpls := make(map[string]*TemplateConfig, len(new.Templates))
	for i := range new.Templates {
		newTmpls[new.Templates[i].Key] = &new.Templates[i]
	}

	// Detect modified and removed templates.
	for key, oldTmpl := range oldTmpls {
		newTmpl, exists := newTmpls[key]
		if !exists {
			d.TemplateChanges = append(d.TemplateChanges, TemplateDiff{
				Key:     key,
				Removed: true,
			})
			d.TemplatesChanged = true
			continue
		}
		if !reflect.DeepEqual(oldTmpl, newTmpl) {
			d.TemplateChanges = append(d.TemplateChanges, TemplateDiff{
				Key:      key,
				Modified: true,
			})
			d.TemplatesChanged = true
		}
	}

	// Detect added templates.
	for key := range newTmpls {
		if _, exists := oldTmpls[key]; !exists {
			d.TemplateChanges = append(d.TemplateChanges, TemplateDiff{
				Key:   key,
				Added: true,
			})
			d.TemplatesChanged = true
		}
	}

	return d
}
