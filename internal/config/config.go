package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendCharLimit is the hard per-request input ceiling of the speech backend.
const BackendCharLimit = 4096

type TelemetryConfig struct {
	LogLevel         string  `yaml:"log_level"`
	Traces           string  `yaml:"traces"` // auto, otlp, stdout, none
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	OTLPInsecure     bool    `yaml:"otlp_insecure"`
	PrometheusBind   string  `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Podcast     PodcastConfig   `yaml:"podcast"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	TTS         TTSConfig       `yaml:"tts"`
	Voices      VoicesConfig    `yaml:"voices"`
	Audio       AudioConfig     `yaml:"audio"`
	Worker      WorkerConfig    `yaml:"worker"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// PodcastConfig controls the bus-facing podcast job service.
type PodcastConfig struct {
	Enabled           bool   `yaml:"enabled"`
	QueueGroup        string `yaml:"queue_group"`
	JobTimeoutMS      int    `yaml:"job_timeout_ms"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
	OutputDir         string `yaml:"output_dir"`
	WorkDir           string `yaml:"work_dir"`
}

// SynthesisConfig bounds how script text is sent to the speech backend.
type SynthesisConfig struct {
	MaxChars    int `yaml:"max_chars"`
	Concurrency int `yaml:"concurrency"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, openai
	Command    string `yaml:"command"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
	SampleRate int    `yaml:"sample_rate"`
}

type VoicesConfig struct {
	Male     []string `yaml:"male"`
	Female   []string `yaml:"female"`
	Fallback string   `yaml:"fallback"`
}

// WorkerConfig identifies this process to other podcast workers on the bus.
type WorkerConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type AudioConfig struct {
	Format string `yaml:"format"` // mp3, wav
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-podcast",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			Traces:           "auto",
			TraceSampleRatio: 1,
			OTLPEndpoint:     "",
			OTLPInsecure:     true,
			PrometheusBind:   ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Podcast: PodcastConfig{
			Enabled:           true,
			QueueGroup:        "podcast-workers",
			JobTimeoutMS:      30 * 60 * 1000,
			MaxConcurrentJobs: 2,
			OutputDir:         "./output",
			WorkDir:           "",
		},
		Synthesis: SynthesisConfig{
			MaxChars:    4000,
			Concurrency: 1,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			Model:      "tts-1-hd",
			TimeoutMS:  120000,
			SampleRate: 24000,
		},
		Voices: VoicesConfig{
			Male:     []string{"onyx", "echo", "fable", "nova", "shimmer"},
			Female:   []string{"nova", "shimmer", "alloy", "echo", "fable"},
			Fallback: "alloy",
		},
		Audio: AudioConfig{
			Format: "wav",
		},
		Worker: WorkerConfig{
			ID:                "",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.Traces, "LOQA_TELEMETRY_TRACES")
	overrideFloat(&cfg.Telemetry.TraceSampleRatio, "LOQA_TELEMETRY_TRACE_SAMPLE_RATIO")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Podcast.Enabled, "LOQA_PODCAST_ENABLED")
	overrideString(&cfg.Podcast.QueueGroup, "LOQA_PODCAST_QUEUE_GROUP")
	overrideInt(&cfg.Podcast.JobTimeoutMS, "LOQA_PODCAST_JOB_TIMEOUT_MS")
	overrideInt(&cfg.Podcast.MaxConcurrentJobs, "LOQA_PODCAST_MAX_CONCURRENT_JOBS")
	overrideString(&cfg.Podcast.OutputDir, "LOQA_PODCAST_OUTPUT_DIR")
	overrideString(&cfg.Podcast.WorkDir, "LOQA_PODCAST_WORK_DIR")
	overrideInt(&cfg.Synthesis.MaxChars, "LOQA_SYNTHESIS_MAX_CHARS")
	overrideInt(&cfg.Synthesis.Concurrency, "LOQA_SYNTHESIS_CONCURRENCY")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.Model, "LOQA_TTS_MODEL")
	overrideString(&cfg.TTS.APIKey, "LOQA_TTS_API_KEY")
	overrideString(&cfg.TTS.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.TTS.BaseURL, "LOQA_TTS_BASE_URL")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_TTS_TIMEOUT_MS")
	overrideInt(&cfg.TTS.MaxRetries, "LOQA_TTS_MAX_RETRIES")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_TTS_SAMPLE_RATE")
	overrideStringSlice(&cfg.Voices.Male, "LOQA_VOICES_MALE")
	overrideStringSlice(&cfg.Voices.Female, "LOQA_VOICES_FEMALE")
	overrideString(&cfg.Voices.Fallback, "LOQA_VOICES_FALLBACK")
	overrideString(&cfg.Audio.Format, "LOQA_AUDIO_FORMAT")
	overrideString(&cfg.Worker.ID, "LOQA_WORKER_ID")
	overrideInt(&cfg.Worker.HeartbeatInterval, "LOQA_WORKER_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Worker.HeartbeatTimeout, "LOQA_WORKER_HEARTBEAT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok || strings.TrimSpace(value) == "" {
		return
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*target = out
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.Traces {
	case "auto", "stdout", "none":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.traces=otlp requires telemetry.otlp_endpoint")
		}
	default:
		return errors.New("telemetry.traces must be one of auto|otlp|stdout|none")
	}
	if cfg.Telemetry.TraceSampleRatio < 0 || cfg.Telemetry.TraceSampleRatio > 1 {
		return errors.New("telemetry.trace_sample_ratio must be between 0 and 1")
	}
	if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty")
	}
	if cfg.Bus.ConnectTimeout <= 0 {
		return errors.New("bus.connect_timeout_ms must be positive")
	}
	if cfg.Podcast.Enabled {
		if cfg.Podcast.QueueGroup == "" {
			return errors.New("podcast.queue_group must not be empty when the service is enabled")
		}
		if cfg.Podcast.MaxConcurrentJobs <= 0 {
			return errors.New("podcast.max_concurrent_jobs must be >= 1")
		}
		if cfg.Podcast.JobTimeoutMS <= 0 {
			return errors.New("podcast.job_timeout_ms must be positive")
		}
	}
	if cfg.Podcast.OutputDir == "" {
		return errors.New("podcast.output_dir must not be empty")
	}
	if cfg.Synthesis.MaxChars <= 0 || cfg.Synthesis.MaxChars > BackendCharLimit {
		return fmt.Errorf("synthesis.max_chars must be between 1 and %d", BackendCharLimit)
	}
	if cfg.Synthesis.Concurrency <= 0 {
		return errors.New("synthesis.concurrency must be >= 1")
	}
	switch cfg.Audio.Format {
	case "mp3", "wav":
	default:
		return errors.New("audio.format must be one of mp3|wav")
	}
	switch cfg.TTS.Mode {
	case "mock":
		if cfg.Audio.Format != "wav" {
			return errors.New("tts.mode=mock only produces wav; set audio.format=wav")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	case "openai":
		if cfg.TTS.APIKey == "" {
			return errors.New("tts.api_key (or OPENAI_API_KEY) must be set when mode=openai")
		}
		if cfg.TTS.Model == "" {
			return errors.New("tts.model must be set when mode=openai")
		}
		if cfg.TTS.MaxRetries < 0 {
			return errors.New("tts.max_retries must be >= 0")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec|openai")
	}
	if len(cfg.Voices.Male) == 0 || len(cfg.Voices.Female) == 0 {
		return errors.New("voices.male and voices.female must not be empty")
	}
	if cfg.Voices.Fallback == "" {
		return errors.New("voices.fallback must not be empty")
	}
	if cfg.Worker.HeartbeatInterval <= 0 {
		return errors.New("worker.heartbeat_interval_ms must be positive")
	}
	if cfg.Worker.HeartbeatTimeout <= cfg.Worker.HeartbeatInterval {
		return errors.New("worker.heartbeat_timeout_ms must exceed worker.heartbeat_interval_ms")
	}
	return nil
}
