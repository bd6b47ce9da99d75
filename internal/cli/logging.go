package cli

import (
	"io"
	"log/slog"
)

// setupLogging installs the process-wide slog handler.
func setupLogging(w io.Writer, level slog.Level, format string) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
