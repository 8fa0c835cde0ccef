// Package logging builds the zerolog loggers used by the CLI and the daemon.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level string
	// JSON switches the primary sink from the human console format to JSON lines.
	JSON bool
	// File, when set, receives a JSON copy of every event.
	File string
}

// New returns a logger writing to w at the given level.
func New(level string, json bool, w io.Writer) zerolog.Logger {
	zerolog.ErrorFieldName = "err"
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(w).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// Open builds the process logger from cfg. The returned close function flushes the
// optional file sink and is never nil.
func Open(cfg Config, stderr io.Writer) (zerolog.Logger, func() error, error) {
	var primary io.Writer = stderr
	if !cfg.JSON {
		primary = zerolog.ConsoleWriter{Out: stderr, TimeFormat: consoleTimeFormat}
	}
	closer := func() error { return nil }

	out := primary
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file %q: %w", cfg.File, err)
		}
		out = zerolog.MultiLevelWriter(primary, zerolog.SyncWriter(f))
		closer = f.Close
	}

	zerolog.ErrorFieldName = "err"
	log := zerolog.New(out).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return log, closer, nil
}

// ParseLevel accepts the usual level names in any case; anything else yields def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "OFF", "DISABLED":
		return zerolog.Disabled
	default:
		return def
	}
}
