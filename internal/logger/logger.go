package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Type for context key for request ID and source in logger
type contextKey string

// Context keys for logging
const (
	RequestIDKey contextKey = "request_id"
	SourceKey    contextKey = "source"
)

// Init builds the process-wide JSON slog handler from a textual level
// ("debug", "info", "warn", "error") and installs it as the default logger.
func Init(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := slog.HandlerOptions{Level: logLevel}
	l := slog.New(slog.NewJSONHandler(os.Stdout, &opts))
	slog.SetDefault(l)
	return l
}

// FromContext extracts the request ID or source from the context and returns a logger with the module
func FromContext(ctx context.Context, module string) *slog.Logger {
	// Try request ID first (HTTP requests)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		return slog.With("request_id", requestID, "module", module)
	}

	// Try source (background tasks)
	if source, ok := ctx.Value(SourceKey).(string); ok && source != "" {
		return slog.With("source", source, "module", module)
	}

	// Fallback
	return slog.With("source", "unknown", "module", module)
}
