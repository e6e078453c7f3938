package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

// Bucket bounds in milliseconds for per-chunk speech backend latency. Speech
// calls take from a few hundred milliseconds to over a minute for long chunks.
var synthesisLatencyBounds = []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 80000, 160000}

// telemetry holds the providers installed for one runtime.
type telemetry struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics http.Handler
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.meter != nil {
		if err := t.meter.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// setupTelemetry installs global trace and meter providers. Console trace
// output goes to stderr, never stdout, which carries the JSON log stream.
func setupTelemetry(cfg config.Config, instanceID string, logger *slog.Logger) (*telemetry, error) {
	ctx := context.Background()
	res, err := newResource(cfg, instanceID)
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(ctx, cfg.Telemetry, res, os.Stderr, logger)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	t := &telemetry{tracer: tp}
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		t.meter = newMeterProvider(res)
	} else {
		t.meter = newMeterProvider(res, promExporter)
		t.metrics = promhttp.Handler()
	}
	otel.SetMeterProvider(t.meter)
	return t, nil
}

func newResource(cfg config.Config, instanceID string) (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("service.instance.id", instanceID),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("podcast.tts.mode", cfg.TTS.Mode),
			attribute.String("podcast.audio.format", cfg.Audio.Format),
		),
	)
}

// newTracerProvider picks the span exporter from telemetry.traces. "auto"
// exports over OTLP when an endpoint is configured and drops spans otherwise.
func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, console io.Writer, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio))),
	}

	mode := cfg.Traces
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if mode == "auto" {
		mode = "none"
		if endpoint != "" {
			mode = "otlp"
		}
	}

	switch mode {
	case "otlp":
		if endpoint == "" {
			return nil, errors.New("telemetry.traces=otlp requires telemetry.otlp_endpoint")
		}
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("tracing enabled", slog.String("exporter", "otlp"), slog.String("endpoint", endpoint))
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(console))
		if err != nil {
			return nil, fmt.Errorf("create console exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("tracing enabled", slog.String("exporter", "stdout"), slog.String("stream", "stderr"))
	case "none":
		logger.Info("tracing disabled")
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", mode)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// newMeterProvider registers readers behind the podcast instrument views.
func newMeterProvider(res *resource.Resource, readers ...sdkmetric.Reader) *sdkmetric.MeterProvider {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "podcast.synthesis.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: synthesisLatencyBounds}},
		)),
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	return sdkmetric.NewMeterProvider(opts...)
}
