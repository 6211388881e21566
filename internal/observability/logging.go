// Package observability configures process-wide structured logging and the
// Prometheus metrics registry shared by the LLM registry and validators.
package observability

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a string log level to slog.Level. Unknown values fall
// back to info rather than erroring, since CLI/config input is frequently a
// little loose.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// InitLogging installs the process default slog logger. Output is JSON when
// writing to a file or pipe (machine-consumable), and a compact text format
// when attached to a terminal.
func InitLogging(level slog.Level, output *os.File) *slog.Logger {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isTerminal(output) {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// OpenLogFile opens (creating if needed) a log file for append, returning a
// cleanup func the caller should defer.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}
