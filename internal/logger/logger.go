package logger

import (
	"io"
	"log/slog"
	"os"
)

// InitLogger initializes and configures the application logger based on environment
// and installs it as the process default. A nil writer means stderr.
// Returns a configured slog.Logger instance
func InitLogger(environment string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := New(environment, w)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w without touching the process default.
// Development gets a text handler at debug level with source locations,
// everything else gets JSON at info level.
func New(environment string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if environment == "development" {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", "kilimo")
}

// Discard returns a logger that drops every record. Used by tests and by
// CLI commands running with -quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}
