package podcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-podcast/internal/audio"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/script"
	"github.com/loqalabs/loqa-podcast/internal/tts"
	"github.com/loqalabs/loqa-podcast/internal/voice"
)

// Options tune a Pipeline.
type Options struct {
	MaxChars         int
	Concurrency      int
	Pools            voice.Pools
	DefaultOutputDir string
	// WorkDir is the parent of per-job scratch directories. Empty means the
	// system temp directory.
	WorkDir string
}

// OptionsFromConfig maps runtime configuration onto pipeline options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxChars:    cfg.Synthesis.MaxChars,
		Concurrency: cfg.Synthesis.Concurrency,
		Pools: voice.Pools{
			Male:     cfg.Voices.Male,
			Female:   cfg.Voices.Female,
			Fallback: cfg.Voices.Fallback,
		},
		DefaultOutputDir: cfg.Podcast.OutputDir,
		WorkDir:          cfg.Podcast.WorkDir,
	}
}

// Pipeline turns a script into a single podcast file. A Pipeline holds no
// per-request state and may run several requests at once.
type Pipeline struct {
	opts      Options
	segmenter *script.Segmenter
	assigner  *voice.Assigner
	synth     *SegmentSynthesizer
	assembler *audio.Assembler
	logger    *slog.Logger
	inst      *instruments
}

func NewPipeline(opts Options, backend tts.Synthesizer, assembler *audio.Assembler, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxChars <= 0 || opts.MaxChars > config.BackendCharLimit {
		opts.MaxChars = config.Default().Synthesis.MaxChars
	}
	return &Pipeline{
		opts:      opts,
		segmenter: script.NewSegmenter(opts.MaxChars, logger),
		assigner:  voice.NewAssigner(opts.Pools, logger),
		synth:     NewSegmentSynthesizer(backend, assembler.Format(), opts.Concurrency, logger),
		assembler: assembler,
		logger:    logger.With(slog.String("component", "podcast-pipeline")),
		inst:      newInstruments(logger),
	}
}

// Run executes one request end to end. Every exit path removes the job's
// scratch directory; a failed run never leaves a podcast file behind.
func (p *Pipeline) Run(ctx context.Context, req Request, obs Observer) Result {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	logger := p.logger.With(slog.String("job_id", req.JobID))
	progress := newMonotonic(req.JobID, obs)

	ctx, span := p.inst.tracer.Start(ctx, "podcast.run", trace.WithAttributes(attribute.String("podcast.job_id", req.JobID)))
	defer span.End()

	path, perr := p.run(ctx, req, progress, logger)
	if perr != nil {
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		p.inst.jobDone(ctx, string(perr.Kind))
		logger.Error("podcast generation failed",
			slog.String("kind", string(perr.Kind)),
			slog.String("stage", string(perr.Stage)),
			slog.Int("segment", perr.Segment),
			slogError(perr))
		progress.report(StageFailed, "Podcast generation failed: "+perr.Error(), 0)
		return Failed(req.JobID, perr)
	}
	p.inst.jobDone(ctx, "ok")
	span.SetAttributes(attribute.String("podcast.path", path))
	logger.Info("podcast generated", slog.String("path", path))
	progress.report(StageDone, "Podcast generated successfully", 100)
	return OK(req.JobID, path)
}

func (p *Pipeline) run(ctx context.Context, req Request, progress *monotonic, logger *slog.Logger) (string, *Error) {
	progress.report(StageStart, "Starting podcast generation", 0)

	names, genders, outputDir, perr := p.prepare(req)
	if perr != nil {
		return "", perr
	}

	progress.report(StageSegmenting, "Segmenting script by speaker", 10)
	utterances, strategy, err := p.segmenter.Segment(req.Script, names)
	if err != nil {
		if errors.Is(err, script.ErrEmptyScript) {
			return "", &Error{Kind: KindEmptyScript, Stage: StageSegmenting, Err: err}
		}
		return "", &Error{Kind: KindConfiguration, Stage: StageSegmenting, Err: err}
	}
	logger.Debug("script segmented", slog.String("strategy", strategy), slog.Int("utterances", len(utterances)))

	progress.report(StageChunking, fmt.Sprintf("Splitting %d utterances into chunks", len(utterances)), 20)
	chunks := ChunkAll(utterances, p.opts.MaxChars)

	progress.report(StageVoiceAssignment, "Assigning voices to speakers", 30)
	voices := p.assigner.Assign(voice.Profiles(names, genders))

	workdir, err := os.MkdirTemp(p.opts.WorkDir, "podcast-job-*")
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Stage: StageSynthesizing, Err: fmt.Errorf("create work dir: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			logger.Warn("failed to remove work dir", slog.String("path", workdir), slogError(err))
		}
	}()

	progress.report(StageSynthesizing, fmt.Sprintf("Generating audio for %d segments", len(chunks)), 40)
	segments, err := p.synth.Synthesize(ctx, chunks, voices, workdir, func(done, total int) {
		progress.report(StageSynthesizing,
			fmt.Sprintf("Generating audio segment %d/%d", done, total),
			40+40*done/total)
	})
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return "", perr
		}
		return "", &Error{Kind: KindSynthesis, Stage: StageSynthesizing, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &Error{Kind: KindCancelled, Stage: StageAssembling, Err: err}
	}

	progress.report(StageAssembling, fmt.Sprintf("Combining %d audio segments", len(segments)), 85)
	path, err := p.assembler.Assemble(segments, outputDir)
	if err != nil {
		return "", &Error{Kind: KindAssembly, Stage: StageAssembling, Err: err}
	}
	progress.report(StageAssembling, "Exported "+filepath.Base(path), 90)
	return path, nil
}

// prepare validates the request and fills in defaults. It runs before any
// backend call.
func (p *Pipeline) prepare(req Request) ([]string, []string, string, *Error) {
	names, genders := req.SpeakerNames, req.SpeakerGenders
	if len(names) == 0 {
		if len(genders) == 0 {
			genders = []string{string(voice.Male), string(voice.Female)}
		}
		names = voice.DefaultNames(genders)
	}
	if len(names) != len(genders) {
		return nil, nil, "", configError("speaker_names has %d entries but speaker_genders has %d", len(names), len(genders))
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = p.opts.DefaultOutputDir
	}
	if outputDir == "" {
		return nil, nil, "", configError("no output directory")
	}
	if err := checkWritable(outputDir); err != nil {
		return nil, nil, "", configError("output directory %s is not writable: %v", outputDir, err)
	}
	return names, genders, outputDir, nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".podcast-write-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
