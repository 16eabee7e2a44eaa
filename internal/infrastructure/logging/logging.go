// Package logging builds the slog loggers used across the CLI.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewConsoleLogger returns a text logger on stderr at the given level.
// Unknown level strings fall back to warn.
func NewConsoleLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
