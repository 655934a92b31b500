// Package logger sets up the process-wide logger of the binaries from LOG_LEVEL and LOG_FORMAT.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	cluster "github.com/Martini024/point-cluster"
)

var defaultLogger *slog.Logger

// Setup creates the default logger writing to stderr.
// LOG_LEVEL is one of debug, info, warn, error. LOG_FORMAT=json switches to JSON output.
func Setup() *slog.Logger {
	defaultLogger = New(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	return defaultLogger
}

// New creates a logger for the given level and format names, unknown names fall back to info and text.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(h)
}

// L returns the default logger, calling Setup on first use.
func L() *slog.Logger {
	if defaultLogger == nil {
		return Setup()
	}
	return defaultLogger
}

// Cluster returns a cluster.Logger sharing the handler of the default logger,
// so load progress ends up in the same stream.
func Cluster() *cluster.Logger {
	return cluster.NewLogger(L().Handler())
}
