// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Context-based platform/action extraction for filtering
// - Dynamic filter-based logging via slog-logfilter library
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	logfilter "github.com/jmylchreest/slog-logfilter"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// PlatformKey is the context key for the platform an operation targets.
	PlatformKey ContextKey = "log_platform"
	// ActionKey is the context key for the action kind being executed.
	ActionKey ContextKey = "log_action"
)

// WithPlatform adds a platform name to the context for logging.
func WithPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, PlatformKey, platform)
}

// WithAction adds an action kind to the context for logging.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, ActionKey, action)
}

// GetPlatform extracts the platform from context.
func GetPlatform(ctx context.Context) string {
	return fromContext(ctx, PlatformKey)
}

// GetAction extracts the action kind from context.
func GetAction(ctx context.Context) string {
	return fromContext(ctx, ActionKey)
}

func fromContext(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger with platform/action from context added as attributes.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	if platform := GetPlatform(ctx); platform != "" {
		logger = logger.With("platform", platform)
	}
	if action := GetAction(ctx); action != "" {
		logger = logger.With("action", action)
	}
	return logger
}

// registerContextExtractors registers the context extractors for filtering.
func registerContextExtractors() {
	logfilter.RegisterContextExtractor("platform", func(ctx context.Context) (string, bool) {
		if s := GetPlatform(ctx); s != "" {
			return s, true
		}
		return "", false
	})

	logfilter.RegisterContextExtractor("action", func(ctx context.Context) (string, bool) {
		if s := GetAction(ctx); s != "" {
			return s, true
		}
		return "", false
	})
}

// New creates a new configured logger using slog-logfilter.
// Format is determined by:
// 1. LOG_FORMAT env var (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info)
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	format := "json"
	if logFormat == "text" || (logFormat == "" && isatty(os.Stdout)) {
		format = "text"
	}

	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	registerContextExtractors()

	return logfilter.New(
		logfilter.WithLevel(level),
		logfilter.WithFormat(format),
		logfilter.WithOutput(os.Stdout),
		logfilter.WithSource(true),
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// SetDefault creates a new logger and sets it as the default slog logger.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the global log level at runtime.
func SetLevel(level slog.Level) {
	logfilter.SetLevel(level)
}

// isatty returns true if the file is a terminal.
func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
