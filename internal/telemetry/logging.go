// Package telemetry provides the engine's structured logging and metrics,
// following the teacher's zerolog/prometheus conventions
// (internal/logging, internal/auth/metrics.go) adapted for library use:
// a logger is injected per Registry rather than configured as a process
// global, since a library must not impose its host's log sink.
package telemetry

import (
	"io"

	"github.com/rs/zerolog"
)

// NewDisabled returns a logger that discards everything, the default for
// library consumers who don't want engine-internal logs.
func NewDisabled() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

// NewConsole returns a human-readable console logger, useful for the
// demo command and local development.
func NewConsole(w io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}
