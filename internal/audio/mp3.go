package audio

import (
	"bytes"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// MP3Codec joins MPEG audio clips at the frame level. Each clip is decoded
// once to prove it is well formed; the audio frames themselves are not
// re-encoded.
type MP3Codec struct{}

func (MP3Codec) Format() string { return "mp3" }

func (MP3Codec) NewTrack() Track { return &mp3Track{} }

type mp3Track struct {
	buf        bytes.Buffer
	clips      int
	sampleRate int
}

func (t *mp3Track) Append(clip []byte) error {
	dec, err := gomp3.NewDecoder(bytes.NewReader(clip))
	if err != nil {
		return fmt.Errorf("decode mp3 clip: %w", err)
	}
	if dec.Length() <= 0 {
		return fmt.Errorf("decode mp3 clip: no audio frames")
	}
	if t.clips == 0 {
		t.sampleRate = dec.SampleRate()
	} else if dec.SampleRate() != t.sampleRate {
		return fmt.Errorf("mp3 clip sample rate %d does not match track rate %d", dec.SampleRate(), t.sampleRate)
	}
	// Only the first clip keeps its ID3 tag. No clip keeps its Xing/Info or
	// VBRI frame: those describe the length of one clip, not the joined stream.
	tagEnd := id3v2End(clip)
	if t.clips == 0 {
		t.buf.Write(clip[:tagEnd])
	}
	t.buf.Write(stripVBRHeader(clip[tagEnd:]))
	t.clips++
	return nil
}

func (t *mp3Track) Clips() int { return t.clips }

func (t *mp3Track) Encode(w io.WriteSeeker) error {
	if t.clips == 0 {
		return fmt.Errorf("mp3 track is empty")
	}
	_, err := w.Write(t.buf.Bytes())
	return err
}

// id3v2End returns the length of a leading ID3v2 tag, or 0.
func id3v2End(clip []byte) int {
	if len(clip) < 10 || string(clip[:3]) != "ID3" {
		return 0
	}
	size := int(clip[6]&0x7f)<<21 | int(clip[7]&0x7f)<<14 | int(clip[8]&0x7f)<<7 | int(clip[9]&0x7f)
	end := 10 + size
	if clip[5]&0x10 != 0 {
		end += 10
	}
	if end > len(clip) {
		return 0
	}
	return end
}

var (
	layer3Bitrates = [2][16]int{
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}, // MPEG-1
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},      // MPEG-2 and 2.5
	}
	mpegSampleRates = map[byte][3]int{
		3: {44100, 48000, 32000}, // MPEG-1
		2: {22050, 24000, 16000}, // MPEG-2
		0: {11025, 12000, 8000},  // MPEG-2.5
	}
)

// layer3Frame describes the MPEG Layer III frame header at the start of b.
type layer3Frame struct {
	mpeg1  bool
	mono   bool
	crc    bool
	length int
}

func parseLayer3Frame(b []byte) (layer3Frame, bool) {
	if len(b) < 4 || b[0] != 0xff || b[1]&0xe0 != 0xe0 {
		return layer3Frame{}, false
	}
	version := (b[1] >> 3) & 0x03
	rates, ok := mpegSampleRates[version]
	if !ok || (b[1]>>1)&0x03 != 0x01 {
		return layer3Frame{}, false
	}
	rateIdx := (b[2] >> 2) & 0x03
	if rateIdx == 3 {
		return layer3Frame{}, false
	}
	f := layer3Frame{
		mpeg1: version == 3,
		mono:  b[3]>>6 == 0x03,
		crc:   b[1]&0x01 == 0,
	}
	table, slots := 1, 72
	if f.mpeg1 {
		table, slots = 0, 144
	}
	bitrate := layer3Bitrates[table][b[2]>>4] * 1000
	if bitrate == 0 {
		return layer3Frame{}, false
	}
	f.length = slots*bitrate/rates[rateIdx] + int((b[2]>>1)&0x01)
	return f, true
}

// sideInfoSize is the Layer III side information length following the
// header (and CRC, when present).
func (f layer3Frame) sideInfoSize() int {
	switch {
	case f.mpeg1 && f.mono:
		return 17
	case f.mpeg1:
		return 32
	case f.mono:
		return 9
	default:
		return 17
	}
}

// stripVBRHeader drops a leading Xing, Info or VBRI frame. Those frames carry
// no audio, only a frame count and seek table for their own file.
func stripVBRHeader(clip []byte) []byte {
	f, ok := parseLayer3Frame(clip)
	if !ok || f.length > len(clip) {
		return clip
	}
	frame := clip[:f.length]
	xing := 4 + f.sideInfoSize()
	if f.crc {
		xing += 2
	}
	if hasTag(frame, xing, "Xing") || hasTag(frame, xing, "Info") || hasTag(frame, 36, "VBRI") {
		return clip[f.length:]
	}
	return clip
}

func hasTag(frame []byte, off int, tag string) bool {
	return off+len(tag) <= len(frame) && string(frame[off:off+len(tag)]) == tag
}
