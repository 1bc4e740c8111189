// Package logging builds the structured [log/slog] logger used across the
// knowligo commands and server, and passes it through request contexts via
// [WithLogger] / [FromContext].
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// loggerKey keys the logger value carried by a context.
type loggerKey struct{}

// New constructs the process logger from environment variables. JSON is the
// default handler so log lines ship to collectors as-is; LOG_FORMAT=text is
// for local development. Every line carries a service attribute so knowligo
// entries are separable in shared log streams.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}

	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler).With(slog.String("service", "knowligo"))
}

// WithLogger stashes logger in the returned context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the [*slog.Logger] stored in ctx, or [slog.Default]
// when none is present so callers never need a nil check.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// parseLevel maps a LOG_LEVEL string to a [slog.Level]. Unknown or empty
// values fall back to Info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
