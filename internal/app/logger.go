package app

import (
	"io"
	"log/slog"
)

// newLogger builds the compiler's slog.Logger. Diagnostics go to errW so they
// never interleave with a catalog emitted on standard output. The global
// logger is left untouched, keeping instances isolated.
func newLogger(levelStr, formatStr string, errW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "text" {
		return slog.New(slog.NewTextHandler(errW, opts))
	}
	return slog.New(slog.NewJSONHandler(errW, opts))
}
