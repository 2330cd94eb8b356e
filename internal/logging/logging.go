// Package logging wraps log/slog with the small set of helpers used across
// the module so that log lines share field names.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type ctxKey struct{}

// NewLogger builds the process logger. Verbose enables debug output.
func NewLogger(w io.Writer, verbose bool, json bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithLogger stores logger in ctx for downstream handlers.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// LogError logs msg at error level with err attached.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	args := append([]any{slog.Any("error", err)}, attrs...)
	orDefault(logger).Error(msg, args...)
}

// LogOperation logs a named operation at info level.
func LogOperation(logger *slog.Logger, operation string, attrs ...any) {
	args := append([]any{slog.String("operation", operation)}, attrs...)
	orDefault(logger).Info("operation", args...)
}

// LogHTTPRequest logs a completed HTTP request.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMs float64, attrs ...any) {
	args := append([]any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs),
	}, attrs...)

	l := orDefault(logger)
	switch {
	case status >= 500:
		l.Error("http_request", args...)
	case status >= 400:
		l.Warn("http_request", args...)
	default:
		l.Info("http_request", args...)
	}
}

// SafeCloseWithLogging closes c and logs any error under the given name.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", name))
	}
}
