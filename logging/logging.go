package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().
	Timestamp().
	Logger()

// Logger returns the process-wide logger. Output defaults to the console
// writer; call SetJSONOutput before starting long-running services that log
// to a collector.
func Logger() *zerolog.Logger {
	return &logger
}

func SetJSONOutput() {
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
