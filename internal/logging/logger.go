// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

func init() {
	// Stack() on an event prints the trace captured by pkg/errors.
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// New returns a logger for environment. Production writes JSON lines;
// everything else gets the console writer. level overrides the default
// (debug outside production, info in production) when it parses.
func New(environment, level string) zerolog.Logger {
	return newWithWriter(os.Stdout, environment, level)
}

func newWithWriter(w io.Writer, environment, level string) zerolog.Logger {
	out := w
	if environment != "production" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl := zerolog.DebugLevel
	if environment == "production" {
		lvl = zerolog.InfoLevel
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
		lvl = parsed
	}

	return zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("service", "eldercare-auth").
		Str("env", environment).
		Logger()
}
