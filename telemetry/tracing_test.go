package telemetry

import (
	"context"
	"testing"
)

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("yt-livestream-rec", "test")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer shutdown()
	if IsTracingEnabled() {
		t.Error("tracing enabled without an endpoint")
	}
	// Spans still work against the no-op provider.
	_, span := StartSpan(WithCorrelation(context.Background(), "run-1"), "test")
	RecordError(span, context.Canceled)
	span.End()
}

func TestTraceSettingsFromEnv(t *testing.T) {
	tests := []struct {
		name, ratio, insecure string
		wantRatio             float64
		wantInsecure          bool
	}{
		{"defaults", "", "", 1, true},
		{"ratio", "0.25", "", 0.25, true},
		{"ratio out of range", "2", "", 1, true},
		{"ratio garbage", "half", "", 1, true},
		{"secure", "", "false", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.ratio)
			t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", tt.insecure)
			ts := traceSettingsFromEnv()
			if ts.endpoint != "collector:4317" || ts.ratio != tt.wantRatio || ts.insecure != tt.wantInsecure {
				t.Errorf("settings = %+v, want ratio %v insecure %v", ts, tt.wantRatio, tt.wantInsecure)
			}
		})
	}
}
