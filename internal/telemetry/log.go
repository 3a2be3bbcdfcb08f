// Package telemetry wires the process-wide zerolog logger and the
// Prometheus collectors every other package reports into. It follows
// the teacher's convention of a single console-writer logger in
// development and structured JSON in production, configured once at
// process start and then accessed via package-level helpers.
package telemetry

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Tests may swap it for a buffered
// writer; production code should not construct its own.
var Logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Init reconfigures the global logger, switching to structured JSON
// output when pretty is false (production) and setting the minimum
// level.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// For returns a child logger tagged with the owning component, the way
// the teacher tags momentum/scoring log lines with a subsystem name.
func For(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
