package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrNoSegments is returned when there is nothing to assemble.
var ErrNoSegments = errors.New("no audio segments to assemble")

// Filename is the fixed output file name for a format.
func Filename(format string) string {
	return "podcast." + format
}

// Assembler joins per-segment audio files into the final podcast file. The
// destination only ever appears complete: the stream is encoded into a
// temporary file in the output directory and renamed into place.
type Assembler struct {
	codec  Codec
	logger *slog.Logger
}

func NewAssembler(codec Codec, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{codec: codec, logger: logger.With(slog.String("component", "assembler"))}
}

func (a *Assembler) Format() string { return a.codec.Format() }

// Assemble reads segments in the given order and writes
// outputDir/podcast.<format>, returning its absolute path.
func (a *Assembler) Assemble(segments []string, outputDir string) (string, error) {
	if len(segments) == 0 {
		return "", ErrNoSegments
	}

	track := a.codec.NewTrack()
	for i, path := range segments {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read segment %d: %w", i, err)
		}
		if err := track.Append(data); err != nil {
			return "", fmt.Errorf("append segment %d: %w", i, err)
		}
		a.logger.Debug("segment appended", slog.Int("index", i), slog.String("path", path))
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	final, err := filepath.Abs(filepath.Join(outputDir, Filename(a.codec.Format())))
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(outputDir, ".podcast-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := track.Encode(tmp); err != nil {
		return "", fmt.Errorf("encode podcast: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync podcast: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", errors.New("encoded podcast is empty")
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close podcast: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("publish podcast: %w", err)
	}
	committed = true

	a.logger.Info("podcast assembled",
		slog.String("path", final),
		slog.Int("segments", track.Clips()),
		slog.Int64("bytes", info.Size()))
	return final, nil
}
