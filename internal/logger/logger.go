package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/bilal/regionpulse/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger from lcfg, writing to stderr.
func Init(lcfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(ParseLevel(lcfg.Level))
	log.Logger = New(lcfg, os.Stderr)
}

// New builds a logger writing to out in the configured format.
func New(lcfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if strings.ToLower(lcfg.Format) == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	// default json
	return zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level; unknown names
// fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
