package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by every span in this module.
const TracerName = "yt-livestream-rec"

var tracingEnabled bool

// traceSettings is the OTLP exporter setup taken from the standard OTEL_* variables.
type traceSettings struct {
	endpoint string
	insecure bool
	ratio    float64
}

func traceSettingsFromEnv() traceSettings {
	ts := traceSettings{
		endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		insecure: os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") != "false",
		ratio:    1,
	}
	if v, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil && v >= 0 && v <= 1 {
		ts.ratio = v
	}
	return ts
}

// InitTracing installs an OTLP/gRPC tracer provider for the run. Without
// OTEL_EXPORTER_OTLP_ENDPOINT spans go to the global no-op provider and the
// returned shutdown does nothing.
func InitTracing(serviceName, serviceVersion string) (func(), error) {
	ts := traceSettingsFromEnv()
	if ts.endpoint == "" {
		tracingEnabled = false
		slog.Debug("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exportOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(ts.endpoint)}
	if ts.insecure {
		exportOpts = append(exportOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(setupCtx, exportOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(setupCtx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ts.ratio))),
	)
	otel.SetTracerProvider(provider)
	tracingEnabled = true
	slog.Info("tracing enabled",
		slog.String("endpoint", ts.endpoint),
		slog.Float64("sample_ratio", ts.ratio))

	return func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := provider.Shutdown(flushCtx); err != nil {
			slog.Warn("trace flush failed", slog.Any("err", err))
		}
	}, nil
}

// IsTracingEnabled reports whether InitTracing installed an exporter.
func IsTracingEnabled() bool { return tracingEnabled }

// StartSpan starts a span carrying the run correlation id when present.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("run_id", corr))
	}
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks span failed with err, tagged with the error's Go type.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(attribute.String("error.type", fmt.Sprintf("%T", err))))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span OK.
func SetSpanSuccess(span trace.Span) { span.SetStatus(codes.Ok, "") }

// AddEvent adds a timestamped event to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

func ChannelAttr(id string) attribute.KeyValue { return attribute.String("youtube.channel_id", id) }
func VideoAttr(id string) attribute.KeyValue   { return attribute.String("youtube.video_id", id) }
func AttemptAttr(n int) attribute.KeyValue     { return attribute.Int("poll.attempt", n) }
func OutcomeAttr(o string) attribute.KeyValue  { return attribute.String("search.outcome", o) }
