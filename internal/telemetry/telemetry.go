package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/healthcast-go/internal/config"
)

const (
	// Service information
	ServiceName    = "healthcast"
	ServiceVersion = "1.0.0"

	httpTracerName     = "github.com/irfndi/healthcast-go/http"
	pipelineTracerName = "github.com/irfndi/healthcast-go/pipeline"
)

var (
	mu             sync.Mutex
	globalProvider *sdktrace.TracerProvider
)

// DefaultConfig returns the telemetry configuration used when none is loaded
func DefaultConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "http://localhost:4318",
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Insecure:       true,
		SampleRatio:    1.0,
	}
}

// InitTelemetry installs the global tracer provider. With telemetry disabled
// the otel no-op provider stays in place and nothing is exported.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig) error {
	if !cfg.Enabled {
		return nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	name := cfg.ServiceName
	if name == "" {
		name = ServiceName
	}
	version := cfg.ServiceVersion
	if version == "" {
		version = ServiceVersion
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
	)

	mu.Lock()
	globalProvider = tp
	mu.Unlock()

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Info("telemetry initialized", "service", name, "stdout", cfg.Stdout)
	return nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	if cfg.Stdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	}

	hostport, path, insecure, _, err := normalizeOTLPEndpoint(cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(hostport),
		otlptracehttp.WithURLPath(path),
	}
	if insecure || cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// normalizeOTLPEndpoint accepts a collector base URL or a full /v1/traces URL
// and returns the pieces otlptracehttp wants.
func normalizeOTLPEndpoint(raw string) (hostport, urlPath string, insecure bool, resolved string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", false, "", fmt.Errorf("invalid OTLPEndpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", "", false, "", fmt.Errorf("invalid OTLPEndpoint %q: scheme and host required", raw)
	}

	base := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(base, "/v1/traces") {
		base += "/v1/traces"
	}
	resolved = fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, base)
	return u.Host, base, u.Scheme == "http", resolved, nil
}

func sampleRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

// Shutdown flushes and stops the global provider, if one was installed
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := globalProvider
	globalProvider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// GetTracer returns a named tracer from the global provider
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// GetHTTPTracer returns the tracer used for inbound requests
func GetHTTPTracer() trace.Tracer {
	return otel.Tracer(httpTracerName)
}

// GetPipelineTracer returns the tracer used by feature, training and prediction runs
func GetPipelineTracer() trace.Tracer {
	return otel.Tracer(pipelineTracerName)
}

// StartPipelineSpan starts an internal span tagged with the user it runs for
func StartPipelineSpan(ctx context.Context, name, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String("user.id", userID)}, attrs...)
	return GetPipelineTracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError marks span as failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
