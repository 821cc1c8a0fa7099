// Package logger provides structured logging built on log/slog.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/codescope/codescope/internal/config"
)

// New creates a JSON slog.Logger configured from cfg.
func New(cfg config.Logging) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With(slog.String("service", cfg.Service))
	}
	return logger
}

// parseLevel maps a config string to a slog.Level. Unknown values fall
// back to info.
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
