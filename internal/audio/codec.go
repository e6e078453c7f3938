// Package audio decodes, concatenates and encodes synthesized speech clips
// into a single podcast file.
package audio

import (
	"fmt"
	"io"
)

// Codec produces tracks for one output format.
type Codec interface {
	// Format is the output format and file extension, e.g. "mp3".
	Format() string
	NewTrack() Track
}

// Track accumulates decoded clips in order and encodes them as one stream.
type Track interface {
	Append(clip []byte) error
	Clips() int
	Encode(w io.WriteSeeker) error
}

// CodecFor returns the codec for an output format.
func CodecFor(format string) (Codec, error) {
	switch format {
	case "mp3":
		return MP3Codec{}, nil
	case "wav":
		return WAVCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported audio format %q", format)
	}
}
