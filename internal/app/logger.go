package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger. LOG_FORMAT=json switches to the JSON
// handler; anything outside production also logs at debug level. A nil w
// writes to stdout.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	if !cfg.IsProduction() {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "ledgercore"))
}
