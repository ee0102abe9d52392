package semkv

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with semkv-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithKey adds a key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// WithVersion adds a checkpoint version field to the logger.
func (l *Logger) WithVersion(version uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("version", version),
	}
}

// LogPut logs a put operation. replaced reports whether an older ordinal was tombstoned.
func (l *Logger) LogPut(ctx context.Context, key string, ordinal uint64, replaced bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "put failed",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "put completed",
			"key", key,
			"ordinal", ordinal,
			"replaced", replaced,
		)
	}
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(ctx context.Context, key string, ordinal uint64, err error) {
	if err != nil {
		l.DebugContext(ctx, "remove failed",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "remove completed",
			"key", key,
			"ordinal", ordinal,
		)
	}
}

// LogSearch logs a k-NN search. fetched is the over-fetched candidate count.
func (l *Logger) LogSearch(ctx context.Context, k, fetched, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"fetched", fetched,
			"results", resultsFound,
		)
	}
}

// LogRangeSearch logs a radius search.
func (l *Logger) LogRangeSearch(ctx context.Context, radiusSquared float32, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "range search failed",
			"radius_squared", radiusSquared,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "range search completed",
			"radius_squared", radiusSquared,
			"results", resultsFound,
		)
	}
}

// LogCommit logs a checkpoint commit.
func (l *Logger) LogCommit(ctx context.Context, version uint64, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"version", version,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "commit completed",
			"version", version,
			"bytes", bytes,
		)
	}
}

// LogRecovery logs a checkpoint artifact that could not be loaded and was
// replaced by an empty or rebuilt structure.
func (l *Logger) LogRecovery(ctx context.Context, artifact string, err error) {
	l.WarnContext(ctx, "checkpoint artifact recovered",
		"artifact", artifact,
		"error", err,
	)
}

// LogReconcile logs the open-time repair of index and metadata drift.
func (l *Logger) LogReconcile(ctx context.Context, truncated int64, orphans uint64) {
	if truncated == 0 && orphans == 0 {
		return
	}
	l.WarnContext(ctx, "reconciled checkpoint",
		"dropped_rows", truncated,
		"orphaned_ordinals", orphans,
	)
}
