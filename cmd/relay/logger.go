package main

import (
	"io"
	"log/slog"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

func newLogger(w io.Writer, level string) *slog.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}).With().Timestamp().Logger()

	return slog.New(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: slogLevel(level)}))
}

func slogLevel(level string) slog.Level {
	switch level {
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
