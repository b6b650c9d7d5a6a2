// Package logger wires log/slog to the configured level. Commands log
// progress and per-item warnings through it; user-facing CLI output stays on
// stdout.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a structured text logger at the given level. Unknown levels
// fall back to info.
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter is New with an explicit destination, for tests.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
