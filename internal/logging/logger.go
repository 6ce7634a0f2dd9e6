// Package logging builds the zerolog logger for the CLI and the TUI.
//
// The TUI owns the terminal, so it logs to a file or nowhere. Headless
// conversions log to stderr through a console writer.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Setup returns a logger at level writing to logFile, or to console when
// logFile is empty. A nil console discards output. The returned close
// function releases the log file.
func Setup(level, logFile string, console io.Writer) (zerolog.Logger, func() error, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var (
		out     io.Writer = io.Discard
		closeFn           = func() error { return nil }
	)
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		out, closeFn = f, f.Close
	case console != nil:
		out = zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return logger, closeFn, nil
}

// WithRun returns a context carrying logger tagged with a fresh run_id, so
// every entry of one conversion can be grouped.
func WithRun(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.With().Str("run_id", uuid.NewString()).Logger().WithContext(ctx)
}
