package logging

import (
	"io"
	"log/slog"
)

// NewLogger returns a structured JSON logger writing to w.
// If verbose == true, level = Debug, else Info.
// Ping lines go to stdout, so w is normally stderr.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := new(slog.LevelVar)
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With("app", "http-ping")
}
