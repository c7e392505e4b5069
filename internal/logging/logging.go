// Package logging configures the process-wide slog logger.
// Subsystems tag their records with a category so logs can be filtered per
// component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Category constants for consistent logging categories.
const (
	CategoryApp     = "app"
	CategoryServer  = "server"
	CategorySession = "session"
	CategoryWorker  = "worker"
	CategoryModel   = "model"
	CategoryStore   = "store"
	CategoryEmitter = "emitter"
	CategoryCapture = "capture"
)

// Setup installs a default slog logger writing to stderr.
// format is "text" or "json"; level is debug, info, warn or error.
func Setup(level, format string) (*slog.Logger, error) {
	return SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// For returns a logger tagged with the given category.
// A nil base falls back to slog.Default().
func For(base *slog.Logger, category string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("category", category)
}
