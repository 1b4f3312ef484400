package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/healthcast-go/internal/config"
)

func TestNormalizeOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hostport string
		urlPath  string
		insecure bool
		resolved string
		wantErr  bool
	}{
		{"default localhost", "http://localhost:4318", "localhost:4318", "/v1/traces", true, "http://localhost:4318/v1/traces", false},
		{"trailing slash base", "http://collector:4318/", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"already traces path", "http://collector:4318/v1/traces", "collector:4318", "/v1/traces", true, "http://collector:4318/v1/traces", false},
		{"custom base path", "https://otlp.example.com:4318/otlp", "otlp.example.com:4318", "/otlp/v1/traces", false, "https://otlp.example.com:4318/otlp/v1/traces", false},
		{"invalid no scheme", "collector:4318", "", "", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp, path, insecure, resolved, err := normalizeOTLPEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hostport, hp)
			assert.Equal(t, tt.urlPath, path)
			assert.Equal(t, tt.insecure, insecure)
			assert.Equal(t, tt.resolved, resolved)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, ServiceName, cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRatio)
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(2))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}

func TestInitTelemetryDisabled(t *testing.T) {
	require.NoError(t, InitTelemetry(context.Background(), config.TelemetryConfig{Enabled: false}))
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInitTelemetryInvalidEndpoint(t *testing.T) {
	err := InitTelemetry(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "collector:4318",
	})
	assert.ErrorContains(t, err, "invalid OTLPEndpoint")
}

func TestInitTelemetryStdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	require.NoError(t, InitTelemetry(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Stdout:      true,
		SampleRatio: 1,
	}))
	assert.NoError(t, Shutdown(context.Background()))
	// second shutdown has nothing left to flush
	assert.NoError(t, Shutdown(context.Background()))
}

func TestStartPipelineSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartPipelineSpan(context.Background(), "trainer.train_user", "u1", attribute.Int("rows", 30))
	RecordError(span, nil)
	RecordError(span, assert.AnError)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "trainer.train_user", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("user.id", "u1"))
	assert.Contains(t, ended[0].Attributes(), attribute.Int("rows", 30))
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Events(), 1)
}

func TestTracerGetters(t *testing.T) {
	assert.NotNil(t, GetTracer("test"))
	assert.NotNil(t, GetHTTPTracer())
	assert.NotNil(t, GetPipelineTracer())
}
