package config

import (
	"slices"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8000", LogLevel: LogInfo},
		Database: DatabaseConfig{
			PostgresDSN: "postgres://localhost/soven",
		},
		Providers: ProvidersConfig{
			STT: ProviderEntry{Name: "whisper", BaseURL: "http://localhost:9000"},
			LLM: ProviderEntry{Name: "ollama", Model: "llama3.2"},
			TTS: ProviderEntry{Name: "coqui", BaseURL: "http://localhost:5002"},
		},
		Audio: AudioConfig{SampleRate: 16000, ChunkSize: 1024, ChunkIntervalMS: 10, Language: "en"},
	}
}

func TestDiffNoChanges(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	d := Diff(old, new)
	if d.LogLevelChanged || d.AudioChanged || d.DatabaseChanged || len(d.ProvidersChanged) != 0 {
		t.Fatalf("diff of identical configs = %+v", d)
	}
	if d.RestartRequired() {
		t.Fatal("identical configs should not require a restart")
	}
}

func TestDiffLogLevel(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = LogDebug
	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Fatalf("diff = %+v, want log level change to debug", d)
	}
	if d.RestartRequired() {
		t.Fatal("a log level change should be hot-applicable")
	}
}

func TestDiffAudio(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Audio.ChunkIntervalMS = 20
	d := Diff(old, new)
	if !d.AudioChanged {
		t.Fatalf("diff = %+v, want audio change", d)
	}
	if d.RestartRequired() {
		t.Fatal("audio changes apply to new sessions without a restart")
	}
}

func TestDiffProviders(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Providers.LLM.Model = "llama3.3"
	new.Providers.TTS.Options = map[string]any{"api_mode": "xtts"}
	d := Diff(old, new)
	if !slices.Equal(d.ProvidersChanged, []string{"llm", "tts"}) {
		t.Fatalf("ProvidersChanged = %v, want [llm tts]", d.ProvidersChanged)
	}
	if !d.RestartRequired() {
		t.Fatal("provider changes require a restart")
	}
}

func TestDiffDatabase(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Database.PostgresDSN = "postgres://otherhost/soven"
	d := Diff(old, new)
	if !d.DatabaseChanged || !d.RestartRequired() {
		t.Fatalf("diff = %+v, want a restart-requiring database change", d)
	}
}
