package app

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger. Development environments get
// console output; everything else writes JSON lines to stdout.
func NewLogger(service, version, environment string) zerolog.Logger {
	return newLogger(os.Stdout, service, version, environment)
}

func newLogger(out io.Writer, service, version, environment string) zerolog.Logger {
	if environment == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// WithLevel applies a textual level. Unknown levels leave log unchanged.
func WithLevel(log zerolog.Logger, level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("level", level).Msg("unknown log level, keeping default")
		return log
	}
	return log.Level(parsed)
}
