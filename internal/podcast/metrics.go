package podcast

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-podcast/podcast"

type instruments struct {
	tracer    trace.Tracer
	jobs      metric.Int64Counter
	chunks    metric.Int64Counter
	synthTime metric.Float64Histogram
}

func newInstruments(logger *slog.Logger) *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if in.jobs, err = meter.Int64Counter("podcast.jobs", metric.WithDescription("Podcast jobs by outcome")); err != nil {
		logger.Warn("failed to create jobs counter", slogError(err))
	}
	if in.chunks, err = meter.Int64Counter("podcast.chunks.synthesized", metric.WithDescription("Chunks sent to the speech backend")); err != nil {
		logger.Warn("failed to create chunk counter", slogError(err))
	}
	if in.synthTime, err = meter.Float64Histogram("podcast.synthesis.duration",
		metric.WithDescription("Speech backend latency per chunk"),
		metric.WithUnit("ms")); err != nil {
		logger.Warn("failed to create synthesis histogram", slogError(err))
	}
	return in
}

func (in *instruments) jobDone(ctx context.Context, outcome string) {
	if in.jobs != nil {
		in.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (in *instruments) chunkDone(ctx context.Context, voice string, started time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("voice", voice), attribute.Bool("error", err != nil))
	if in.chunks != nil {
		in.chunks.Add(ctx, 1, attrs)
	}
	if in.synthTime != nil {
		in.synthTime.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
