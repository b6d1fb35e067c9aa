// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AlertFraudSuspect tags log lines that alerting must treat apart from
// ordinary buyer-facing failures.
const AlertFraudSuspect = "fraud_suspect"

// Setup installs the global logger for a service. Pretty selects the console
// writer used during local development; otherwise lines are JSON.
func Setup(service, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", service).Logger()
	return log.Logger
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// SecurityAlert starts a warn-level event tagged as fraud-relevant.
func SecurityAlert(l *zerolog.Logger) *zerolog.Event {
	return l.Warn().Str("alert", AlertFraudSuspect)
}
