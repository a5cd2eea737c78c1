// Package sysutil holds process bootstrap helpers: global zerolog setup and
// small string utilities shared by the entrypoint and adapters.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global zerolog level. Names are case-insensitive and
// "warning" is accepted for warn. Blank or unknown values mean info.
func SetLogLevel(lvl string) {
	name := strings.ToLower(strings.TrimSpace(lvl))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// ConfigureLogger installs the process-wide logger. Pretty output is meant for
// local development; production emits JSON lines with RFC3339 UTC timestamps.
// The configured logger is also returned for explicit injection.
func ConfigureLogger(level string, pretty bool, service string) zerolog.Logger {
	return configureLogger(os.Stdout, level, pretty, service)
}

func configureLogger(w io.Writer, level string, pretty bool, service string) zerolog.Logger {
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	lg := zerolog.New(out).With().Timestamp().Str("service", service).Logger()
	log.Logger = lg
	return lg
}

// Component derives a sub-logger tagged with the component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// FirstNonEmpty returns the first non-blank string from a variadic list.
// If all values are blank, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
