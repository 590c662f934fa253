// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLevel is used when no -v flag is given.
const DefaultLevel = slog.LevelWarn

// Config selects level, format and an optional rotating log file.
type Config struct {
	Verbosity int
	JSON      bool
	// Quiet drops the stderr copy, for programs owning the terminal.
	Quiet bool

	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Level maps the -v count onto a slog level.
func Level(verbosity int) slog.Level {
	switch verbosity {
	case 0:
		return DefaultLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Setup installs the default logger writing to stderr unless cfg.Quiet is
// set and, when cfg.File is set, to a rotating file. The returned closer
// flushes the file.
func Setup(cfg Config) io.Closer {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.Quiet {
		out = io.Discard
	}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		if cfg.Quiet {
			out = file
		} else {
			out = io.MultiWriter(os.Stderr, file)
		}
		closer = file
	}

	slog.SetDefault(slog.New(NewHandler(out, cfg)))
	return closer
}

// NewHandler returns the handler Setup would install, writing to w.
func NewHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: Level(cfg.Verbosity)}
	if cfg.JSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
