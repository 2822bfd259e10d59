// Package monitoring - logger.go provides structured logging via zerolog.
//
// DESIGN: Thin constructor around zerolog with:
//   - Configurable level, format (json/console/auto), output (stdout/stderr/file)
//   - auto picks the console writer when the output is a terminal
//   - Global() sets the default logger for the CLI; library packages take
//     a logger through their options instead
package monitoring

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// New returns a logger for cfg. An unknown level falls back to info and an
// unopenable file to stderr.
func New(cfg LoggerConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out *os.File
	switch cfg.Output {
	case "stderr", "":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			out = os.Stderr
		} else {
			out = f
		}
	}

	return newLogger(out, consoleFormat(cfg.Format, out), level)
}

func newLogger(w io.Writer, console bool, level zerolog.Level) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func consoleFormat(format string, out *os.File) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}

// Global sets the global zerolog logger and returns it.
func Global(cfg LoggerConfig) zerolog.Logger {
	logger := New(cfg)
	log.Logger = logger
	return logger
}
