package tts

import (
	"fmt"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

// FromConfig builds the synthesizer selected by cfg.Mode.
func FromConfig(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate)
	case "openai":
		opts := []OpenAIOption{WithMaxRetries(cfg.MaxRetries)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.TimeoutMS > 0 {
			opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond))
		}
		return NewOpenAISynth(cfg.APIKey, cfg.Model, opts...)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
