package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log level and audio
// changes can be applied to a running server (new sessions pick them up);
// provider and database changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AudioChanged is true when any session audio tunable changed.
	AudioChanged bool

	// ProvidersChanged lists the pipeline stages ("stt", "llm", "tts") whose
	// provider settings changed. Restart required.
	ProvidersChanged []string

	// DatabaseChanged is true when the DSN changed. Restart required.
	DatabaseChanged bool
}

// RestartRequired reports whether the change set includes settings that
// cannot be hot-applied.
func (d ConfigDiff) RestartRequired() bool {
	return len(d.ProvidersChanged) > 0 || d.DatabaseChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Audio != new.Audio {
		d.AudioChanged = true
	}

	if !providerEntryEqual(old.Providers.STT, new.Providers.STT) {
		d.ProvidersChanged = append(d.ProvidersChanged, "stt")
	}
	if !providerEntryEqual(old.Providers.LLM, new.Providers.LLM) {
		d.ProvidersChanged = append(d.ProvidersChanged, "llm")
	}
	if !providerEntryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.ProvidersChanged = append(d.ProvidersChanged, "tts")
	}

	if old.Database.PostgresDSN != new.Database.PostgresDSN {
		d.DatabaseChanged = true
	}

	return d
}

// providerEntryEqual compares entries field by field. Options may hold
// nested maps, so they need a deep comparison.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
