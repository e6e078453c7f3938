package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

const resampleQuality = 4

// WAVCodec decodes WAV or MP3 clips to PCM, resamples them to the first
// clip's rate and writes one WAV file.
type WAVCodec struct{}

func (WAVCodec) Format() string { return "wav" }

func (WAVCodec) NewTrack() Track { return &wavTrack{} }

type wavTrack struct {
	buf   *beep.Buffer
	clips int
}

func (t *wavTrack) Append(clip []byte) error {
	streamer, format, err := decodeClip(clip)
	if err != nil {
		return err
	}
	defer streamer.Close()

	if t.buf == nil {
		format.Precision = 2
		t.buf = beep.NewBuffer(format)
	}
	var s beep.Streamer = streamer
	if target := t.buf.Format().SampleRate; format.SampleRate != target {
		s = beep.Resample(resampleQuality, format.SampleRate, target, streamer)
	}
	t.buf.Append(s)
	if err := streamer.Err(); err != nil {
		return fmt.Errorf("decode clip: %w", err)
	}
	t.clips++
	return nil
}

func (t *wavTrack) Clips() int { return t.clips }

func (t *wavTrack) Encode(w io.WriteSeeker) error {
	if t.buf == nil || t.buf.Len() == 0 {
		return fmt.Errorf("wav track is empty")
	}
	return wav.Encode(w, t.buf.Streamer(0, t.buf.Len()), t.buf.Format())
}

func decodeClip(clip []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(clip) >= 12 && string(clip[:4]) == "RIFF" && string(clip[8:12]) == "WAVE" {
		s, f, err := wav.Decode(bytes.NewReader(clip))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav clip: %w", err)
		}
		return s, f, nil
	}
	s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(clip)))
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode mp3 clip: %w", err)
	}
	return s, f, nil
}
