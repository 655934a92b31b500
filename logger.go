package cluster

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with cluster-specific helpers,
// so load progress is reported with consistent field names.
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

// NewTextLogger creates a Logger that outputs human-readable text logs to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// LogZoomPass logs one merge pass of the hierarchy builder.
func (l *Logger) LogZoomPass(ctx context.Context, zoom, records, clusters int, took time.Duration) {
	l.DebugContext(ctx, "zoom pass completed",
		"zoom", zoom,
		"records", records,
		"clusters", clusters,
		"took", took,
	)
}

// LogLoad logs a finished or failed Load.
func (l *Logger) LogLoad(ctx context.Context, points, levels int, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"points", points,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "load completed",
		"points", points,
		"levels", levels,
		"took", took,
	)
}

// LogSnapshot logs a snapshot write or read.
func (l *Logger) LogSnapshot(ctx context.Context, op string, compression Compression, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"compression", compression.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot completed",
		"op", op,
		"compression", compression.String(),
	)
}
