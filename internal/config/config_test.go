package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Synthesis.MaxChars != 4000 {
		t.Fatalf("expected default max chars 4000, got %d", cfg.Synthesis.MaxChars)
	}
	if cfg.Voices.Male[0] != "onyx" || cfg.Voices.Female[0] != "nova" {
		t.Fatalf("unexpected default voice pools: %v %v", cfg.Voices.Male, cfg.Voices.Female)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_PODCAST_OUTPUT_DIR", "/tmp/podcasts")
	t.Setenv("LOQA_PODCAST_MAX_CONCURRENT_JOBS", "5")
	t.Setenv("LOQA_SYNTHESIS_MAX_CHARS", "3500")
	t.Setenv("LOQA_SYNTHESIS_CONCURRENCY", "3")
	t.Setenv("LOQA_VOICES_FEMALE", "shimmer, alloy")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" {
		t.Fatalf("expected username override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Podcast.OutputDir != "/tmp/podcasts" {
		t.Fatalf("expected output dir override, got %q", cfg.Podcast.OutputDir)
	}
	if cfg.Podcast.MaxConcurrentJobs != 5 {
		t.Fatalf("expected max concurrent jobs override")
	}
	if cfg.Synthesis.MaxChars != 3500 || cfg.Synthesis.Concurrency != 3 {
		t.Fatalf("expected synthesis overrides, got %+v", cfg.Synthesis)
	}
	if len(cfg.Voices.Female) != 2 || cfg.Voices.Female[1] != "alloy" {
		t.Fatalf("expected female pool override, got %v", cfg.Voices.Female)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podcast.yaml")
	data := []byte(`tts:
  mode: exec
  command: "python3 synth.py --fast"
audio:
  format: mp3
synthesis:
  max_chars: 2000
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TTS.Mode != "exec" || cfg.Audio.Format != "mp3" || cfg.Synthesis.MaxChars != 2000 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Voices.Fallback != "alloy" {
		t.Fatalf("expected defaults to survive partial yaml")
	}
}

func TestValidateRejectsOversizedChunks(t *testing.T) {
	t.Setenv("LOQA_SYNTHESIS_MAX_CHARS", "5000")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for max_chars above backend limit")
	}
}

func TestValidateMockRequiresWav(t *testing.T) {
	t.Setenv("LOQA_AUDIO_FORMAT", "mp3")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for mock backend with mp3 output")
	}
}

func TestValidateOpenAIRequiresKey(t *testing.T) {
	t.Setenv("LOQA_TTS_MODE", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOQA_TTS_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for openai backend without key")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.APIKey != "sk-test" {
		t.Fatalf("expected api key from OPENAI_API_KEY")
	}
}

func TestValidateWorkerHeartbeat(t *testing.T) {
	t.Setenv("LOQA_WORKER_ID", "podcast-a")
	t.Setenv("LOQA_WORKER_HEARTBEAT_INTERVAL_MS", "5000")
	t.Setenv("LOQA_WORKER_HEARTBEAT_TIMEOUT_MS", "1000")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when heartbeat timeout is shorter than the interval")
	}
	t.Setenv("LOQA_WORKER_HEARTBEAT_TIMEOUT_MS", "15000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Worker.ID != "podcast-a" {
		t.Fatalf("expected worker id override, got %q", cfg.Worker.ID)
	}
}

func TestValidateTelemetryTraces(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.Traces != "auto" || cfg.Telemetry.TraceSampleRatio != 1 {
		t.Fatalf("unexpected trace defaults: %q %v", cfg.Telemetry.Traces, cfg.Telemetry.TraceSampleRatio)
	}

	t.Setenv("LOQA_TELEMETRY_TRACES", "otlp")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for otlp traces without an endpoint")
	}
	t.Setenv("LOQA_TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	if _, err := Load(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("LOQA_TELEMETRY_TRACES", "console")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown trace exporter")
	}

	t.Setenv("LOQA_TELEMETRY_TRACES", "stdout")
	t.Setenv("LOQA_TELEMETRY_TRACE_SAMPLE_RATIO", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for sample ratio above 1")
	}
	t.Setenv("LOQA_TELEMETRY_TRACE_SAMPLE_RATIO", "0.25")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.TraceSampleRatio != 0.25 {
		t.Fatalf("expected sample ratio override, got %v", cfg.Telemetry.TraceSampleRatio)
	}
}

func TestTTSMaxRetriesDefaultsToZero(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.MaxRetries != 0 {
		t.Fatalf("expected no backend retries by default, got %d", cfg.TTS.MaxRetries)
	}
	t.Setenv("LOQA_TTS_MODE", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOQA_TTS_MAX_RETRIES", "-1")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for negative max retries")
	}
}
