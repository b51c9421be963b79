// Package logging configures the zerolog loggers shared by the server.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
)

// New builds the root logger. format is "console" or "json".
func New(level, format string) zerolog.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(format) == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str(FieldComponent, name).Logger()
}

// Request returns a child logger tagged with a request id.
func Request(log zerolog.Logger, requestID string) zerolog.Logger {
	return log.With().Str(FieldRequestID, requestID).Logger()
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
