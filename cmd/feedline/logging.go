package main

import (
	"log/slog"
	"os"
	"strings"
)

// logLevel is the daemon-wide level. Config reloads adjust it in place
// so a level change never rebuilds the handler.
var logLevel = new(slog.LevelVar)

func setupLogger(level, format string) *slog.Logger {
	logLevel.Set(parseLevel(level))

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: strings.ToLower(level) == "debug",
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
