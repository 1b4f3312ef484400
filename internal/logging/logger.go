package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// StandardLogger wraps a slog.Logger with the context helpers used across
// the service. The underlying handler is either JSON on stdout or the OTLP bridge.
type StandardLogger struct {
	logger   *slog.Logger
	shutdown func(context.Context) error
}

// NewStandardLogger creates a JSON logger on stdout
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return NewStandardLoggerWith(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: getSlogLevel(logLevel),
	})).With("environment", environment))
}

// Discard returns a logger that drops every record
func Discard() *StandardLogger {
	return NewStandardLoggerWith(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

// NewStandardOTLPLogger creates a logger that exports through OTLP, falling
// back to stdout JSON when the exporter cannot be created
func NewStandardOTLPLogger(config OTLPConfig) *StandardLogger {
	otlpLogger, err := NewOTLPLogger(config)
	if err != nil {
		fallback := NewStandardLogger(config.LogLevel, config.Environment)
		fallback.logger.Warn("OTLP logging unavailable, using stdout", "error", err.Error())
		return fallback
	}
	return &StandardLogger{logger: otlpLogger.Logger(), shutdown: otlpLogger.Shutdown}
}

// NewStandardLoggerWith wraps an existing slog logger
func NewStandardLoggerWith(logger *slog.Logger) *StandardLogger {
	return &StandardLogger{logger: logger, shutdown: func(context.Context) error { return nil }}
}

// Logger returns the underlying slog logger
func (l *StandardLogger) Logger() *slog.Logger {
	return l.logger
}

// Shutdown flushes the log exporter, if any
func (l *StandardLogger) Shutdown(ctx context.Context) error {
	return l.shutdown(ctx)
}

// WithTarget creates a logger scoped to one prediction target
func (l *StandardLogger) WithTarget(target string) *slog.Logger {
	return l.logger.With("target", target)
}

// WithJob creates a logger scoped to a training job
func (l *StandardLogger) WithJob(jobID string) *slog.Logger {
	return l.logger.With("job_id", jobID)
}

// WithError creates a logger with error context
func (l *StandardLogger) WithError(err error) *slog.Logger {
	if err == nil {
		return l.logger
	}
	return l.logger.With("error", err.Error())
}

// LogStartup logs application startup information
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Application startup",
		"service", serviceName,
		"version", version,
		"port", port,
		"event", "startup",
	)
}

// LogShutdown logs application shutdown information
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Application shutdown",
		"service", serviceName,
		"reason", reason,
		"event", "shutdown",
	)
}

// LogAPIRequest logs API requests in a standardized format
func (l *StandardLogger) LogAPIRequest(method string, path string, statusCode int, duration int64, userID string) {
	level := slog.LevelInfo
	if statusCode >= 500 {
		level = slog.LevelError
	} else if statusCode >= 400 {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, "API request",
		"method", method,
		"path", path,
		"status", statusCode,
		"duration_ms", duration,
		"user_id", userID,
		"event", "api",
	)
}

// LogPipelineEvent logs a feature, training or prediction run outcome
func (l *StandardLogger) LogPipelineEvent(stage string, userID string, details map[string]interface{}) {
	l.logger.Info("Pipeline event",
		"stage", stage,
		"user_id", userID,
		"details", details,
		"event", "pipeline",
	)
}

// NewLogrusLogger returns the JSON logrus logger injected into services
func NewLogrusLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// getSlogLevel converts string log level to slog.Level
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
