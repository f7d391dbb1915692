package main

import (
	"io"
	"log/slog"

	"github.com/MrWong99/teleprompt/internal/config"
)

// newLogger creates a structured logger writing to w. The level is read from
// lv on every record so a config reload can change it.
func newLogger(w io.Writer, lv *slog.LevelVar, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lv}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
