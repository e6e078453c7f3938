package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAISynth calls the OpenAI speech endpoint. The client does not retry
// unless WithMaxRetries asks it to; a failed chunk fails its job.
type openAISynth struct {
	client oai.Client
	model  string
}

// OpenAIOption customises the OpenAI backend.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// WithMaxRetries lets the client retry transient failures n times. The
// default is zero.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) { c.maxRetries = n }
}

func NewOpenAISynth(apiKey, model string, opts ...OpenAIOption) (Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai tts: model must not be empty")
	}
	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries < 0 {
		cfg.maxRetries = 0
	}
	reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	return &openAISynth{client: oai.NewClient(reqOpts...), model: model}, nil
}

func (s *openAISynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	format := oai.AudioSpeechNewParamsResponseFormatMP3
	if req.Format == "wav" {
		format = oai.AudioSpeechNewParamsResponseFormatWAV
	}
	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(s.model),
		Voice:          oai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: format,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai tts: empty audio response")
	}
	return data, nil
}
