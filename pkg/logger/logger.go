// Package logger builds the process-wide zerolog.Logger from a level
// name and a pretty/JSON switch, the construction teacher binaries share
// across cmd/ entrypoints.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Config configures New.
type Config struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error").
	// An unrecognized name falls back to info.
	Level string
	// Pretty selects a human-readable console writer instead of raw
	// JSON lines; meant for local/dev runs, not production.
	Pretty bool
}

// New builds a zerolog.Logger writing to stderr.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
