package tts

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/loqalabs/loqa-podcast/internal/audio"
)

// Mock speech length is roughly 12 characters per second.
const samplesPerRuneDivisor = 12

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns a backend that renders silence as mono 16-bit WAV,
// sized to the text, without calling any service.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Format != "" && req.Format != "wav" {
		return nil, fmt.Errorf("mock tts only renders wav, got %q", req.Format)
	}
	n := m.sampleRate * utf8.RuneCountInString(req.Text) / samplesPerRuneDivisor
	if n <= 0 {
		n = m.sampleRate / 10
	}
	format := beep.Format{SampleRate: beep.SampleRate(m.sampleRate), NumChannels: 1, Precision: 2}
	var buf audio.Buffer
	if err := wav.Encode(&buf, beep.Silence(n), format); err != nil {
		return nil, fmt.Errorf("encode mock wav: %w", err)
	}
	return buf.Bytes(), nil
}
