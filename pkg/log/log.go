// Package log configures the process-wide slog default used by every
// binary; packages derive module-scoped loggers from it.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger at the given level. LOG_FORMAT=json
// switches to JSON output for log shippers; unknown levels fall back to
// info.
func Setup(logLevel string) {
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithModule returns a logger carrying the module attribute.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
