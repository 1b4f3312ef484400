package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/healthcast-go/internal/telemetry"
)

// Package middleware provides HTTP middleware components for authentication,
// authorization and telemetry.

var probePaths = map[string]bool{"/health": true, "/ready": true, "/live": true}

// TelemetryMiddleware annotates the request span with route and user attributes.
// When no span is recording yet (otelgin not installed) it starts one itself.
func TelemetryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if probePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			ctx, started := telemetry.GetHTTPTracer().Start(
				c.Request.Context(),
				fmt.Sprintf("HTTP %s %s", c.Request.Method, routeOrPath(c)),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", c.Request.Method),
					attribute.String("http.url", c.Request.URL.String()),
					attribute.String("http.client_ip", c.ClientIP()),
				),
			)
			defer started.End()
			c.Request = c.Request.WithContext(ctx)
			span = started
		}

		start := time.Now()
		c.Next()

		attrs := []attribute.KeyValue{
			attribute.String("http.route", routeOrPath(c)),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.response.time_ms", time.Since(start).Milliseconds()),
		}
		if userID := c.Param("user_id"); userID != "" {
			attrs = append(attrs, attribute.String("user.id", userID))
		} else if userID, ok := AuthenticatedUserID(c); ok {
			attrs = append(attrs, attribute.String("user.id", userID))
		}
		span.SetAttributes(attrs...)

		if status := c.Writer.Status(); status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
	}
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute adds an attribute to the current span
func AddSpanAttribute(c *gin.Context, key string, value interface{}) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}

func routeOrPath(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}
