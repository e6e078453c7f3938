package podcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-podcast/internal/tts"
	"github.com/loqalabs/loqa-podcast/internal/voice"
)

// ChunkReporter is told each time the chunk at 1-based position done of
// total has been released in order.
type ChunkReporter func(done, total int)

// SegmentSynthesizer sends chunks to the speech backend and stores each clip
// in a work directory. Clip paths are always returned in chunk order.
type SegmentSynthesizer struct {
	backend     tts.Synthesizer
	format      string
	concurrency int
	logger      *slog.Logger
	inst        *instruments
}

// NewSegmentSynthesizer returns a synthesizer that runs up to concurrency
// backend calls at once. A concurrency of 1 or less is strictly sequential.
func NewSegmentSynthesizer(backend tts.Synthesizer, format string, concurrency int, logger *slog.Logger) *SegmentSynthesizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "segment-synthesizer"))
	return &SegmentSynthesizer{
		backend:     backend,
		format:      format,
		concurrency: max(concurrency, 1),
		logger:      logger,
		inst:        newInstruments(logger),
	}
}

// Synthesize renders chunks with their speakers' voices into workdir. Empty
// chunks are skipped. The first failure aborts the run and is returned as an
// *Error carrying the failing chunk's 1-based position.
func (s *SegmentSynthesizer) Synthesize(ctx context.Context, chunks []AudioChunk, voices voice.Map, workdir string, report ChunkReporter) ([]string, error) {
	if report == nil {
		report = func(int, int) {}
	}
	if s.concurrency == 1 || len(chunks) < 2 {
		return s.sequential(ctx, chunks, voices, workdir, report)
	}
	return s.concurrent(ctx, chunks, voices, workdir, report)
}

func (s *SegmentSynthesizer) sequential(ctx context.Context, chunks []AudioChunk, voices voice.Map, workdir string, report ChunkReporter) ([]string, error) {
	paths := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: KindCancelled, Stage: StageSynthesizing, Segment: i + 1, Err: err}
		}
		path, err := s.render(ctx, i, chunk, voices, workdir)
		if err != nil {
			return nil, s.failure(ctx, i, err)
		}
		if path != "" {
			paths = append(paths, path)
		}
		report(i+1, len(chunks))
	}
	return paths, nil
}

// concurrent fans chunks out to a bounded worker group. Completed clips wait
// behind a sequencing barrier until every earlier chunk is done, so release
// order matches chunk order regardless of completion order.
func (s *SegmentSynthesizer) concurrent(ctx context.Context, chunks []AudioChunk, voices voice.Map, workdir string, report ChunkReporter) ([]string, error) {
	var (
		mu       sync.Mutex
		results  = make([]string, len(chunks))
		done     = make([]bool, len(chunks))
		failures = make([]error, len(chunks))
		next     int
		paths    = make([]string, 0, len(chunks))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			path, err := s.render(gctx, i, chunk, voices, workdir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A call interrupted because a sibling already failed is not
				// the cause of the failure.
				if gctx.Err() == nil || ctx.Err() != nil {
					failures[i] = err
				}
				return err
			}
			results[i], done[i] = path, true
			for next < len(chunks) && done[next] {
				if results[next] != "" {
					paths = append(paths, results[next])
				}
				next++
				report(next, len(chunks))
			}
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Stage: StageSynthesizing, Segment: next + 1, Err: err}
	}
	for i, err := range failures {
		if err != nil {
			return nil, s.failure(ctx, i, err)
		}
	}
	if waitErr != nil {
		return nil, s.failure(ctx, next, waitErr)
	}
	return paths, nil
}

// render synthesizes one chunk and writes it to workdir. It returns an empty
// path for chunks with no text.
func (s *SegmentSynthesizer) render(ctx context.Context, i int, chunk AudioChunk, voices voice.Map, workdir string) (string, error) {
	if chunk.Text == "" {
		s.logger.Debug("skipping empty chunk", slog.Int("sequence", chunk.Sequence), slog.Int("sub_index", chunk.SubIndex))
		return "", nil
	}
	voiceID, known := voices.Voice(chunk.Speaker)
	if !known {
		s.logger.Warn("speaker has no assigned voice, using fallback",
			slog.String("speaker", chunk.Speaker),
			slog.String("voice", voiceID))
	}

	ctx, span := s.inst.tracer.Start(ctx, "podcast.synthesize_chunk", trace.WithAttributes(
		attribute.Int("podcast.chunk.position", i+1),
		attribute.Int("podcast.chunk.sequence", chunk.Sequence),
		attribute.Int("podcast.chunk.sub_index", chunk.SubIndex),
		attribute.String("podcast.voice", voiceID),
	))
	defer span.End()

	started := time.Now()
	data, err := s.backend.Synthesize(ctx, tts.SynthRequest{Text: chunk.Text, Voice: voiceID, Format: s.format})
	s.inst.chunkDone(ctx, voiceID, started, err)
	if err == nil && len(data) == 0 {
		err = errors.New("backend returned no audio")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	path := filepath.Join(workdir, fmt.Sprintf("segment_%04d_%02d.%s", chunk.Sequence, chunk.SubIndex, s.format))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write segment: %w", err)
	}
	s.logger.Debug("chunk synthesized",
		slog.Int("position", i+1),
		slog.String("speaker", chunk.Speaker),
		slog.String("voice", voiceID),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(started)))
	return path, nil
}

func (s *SegmentSynthesizer) failure(ctx context.Context, i int, err error) *Error {
	kind := KindSynthesis
	if ctx.Err() != nil {
		kind = KindCancelled
	}
	return &Error{Kind: kind, Stage: StageSynthesizing, Segment: i + 1, Err: err}
}
