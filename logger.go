package gravix

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with gravix-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithKey adds a key field to the logger (useful for tagging operations).
func (l *Logger) WithKey(key uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, key uint64, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"key", key,
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"key", key,
			"size", size,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, key uint64, removed bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"key", key,
			"removed", removed,
		)
	}
}

// LogGrowth logs a table growth cycle.
func (l *Logger) LogGrowth(ctx context.Context, fromBuckets, toBuckets int, generation uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "table growth failed",
			"from_buckets", fromBuckets,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "table growth completed",
			"from_buckets", fromBuckets,
			"to_buckets", toBuckets,
			"generation", generation,
			"duration", duration,
		)
	}
}

// LogClose logs store teardown.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store closed")
	}
}
