package tts

import "context"

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text   string
	Voice  string
	Format string // mp3 or wav
}

// Synthesizer is the contract for producing audio. Implementations return one
// complete encoded clip per request and do not retry internally unless the
// operator configured it (tts.max_retries).
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}
