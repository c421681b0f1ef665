package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewLogger returns a JSON logger on stdout for the service processes.
func NewLogger(level string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewConsoleLogger returns a human-readable logger, used by the terminal viewer.
func NewConsoleLogger(level string, w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
}

// Component tags a logger with the emitting subsystem.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
