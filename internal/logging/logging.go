// Package logging builds the process logger: human-readable text on stderr,
// plus JSON lines in a file when one is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/roach88/causal/internal/config"
)

// Logger is a configured logger and the resources it holds.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	file  *os.File
}

// New creates a logger writing text to w. verbose forces debug level.
func New(cfg config.LogConfig, w io.Writer, verbose bool) (*Logger, error) {
	level := new(slog.LevelVar)
	parsed, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	level.Set(parsed)
	if verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}

	l := &Logger{Level: level}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Level:  new(slog.LevelVar),
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
