package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-level structured logger for bootstrap,
// store connection, and config-load concerns — everything that happens
// outside a running execution and therefore has no bus.Event to ride on.
// Per-execution observability stays on the emit-style observers in the
// observe package; this is the split SPEC_FULL.md's Logging section
// describes, the same one the teacher draws between its Emitter
// (workflow observability) and any ad hoc process logging.
func NewLogger(cfg *Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var writer zerolog.ConsoleWriter
	logger := zerolog.New(os.Stderr)
	if cfg.LogFormat != "json" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(writer)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
