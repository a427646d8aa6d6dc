// Package log bootstraps the process-wide zerolog logger. Components derive
// their own loggers with log.With().Str("component", ...).Logger().
package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log wraps a configured zerolog.Logger.
type Log struct {
	zerolog.Logger
}

// New creates a logger writing JSON to stderr, or human-readable console
// output when pretty is set. Unknown levels fall back to info.
func New(level string, pretty bool) *Log {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out = os.Stderr
	logger := zerolog.New(out)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		})
	}

	logger = logger.Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Log{Logger: logger}
}

// ParseLevel maps a level string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
