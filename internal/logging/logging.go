// Package logging builds the structured logger shared by the engine and
// the presentation layers.
//
// Components take a *slog.Logger. The handler behind it is
// charmbracelet/log, writing to stderr or to a size-rotated file.
//
// Example:
//
//	logger, closer := logging.New(logging.Options{Level: "debug", Format: "logfmt"})
//	defer closer.Close()
//	slog.SetDefault(logger)
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	// Level is one of debug, info, warn or error (default info).
	Level string

	// Format is one of text, logfmt or json (default text).
	Format string

	// File, when set, receives the log instead of Output and is rotated
	// once it reaches MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a logger and the closer of its output. The closer is a no-op
// unless the log goes to a file.
func New(opts Options) (*slog.Logger, io.Closer) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.Output != nil {
		out = opts.Output
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		out, closer = rotator, rotator
	}

	handler := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "cloudmusic",
		Formatter:       formatter(opts.Format),
		Level:           level(opts.Level),
	})
	return slog.New(handler), closer
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func formatter(name string) log.Formatter {
	switch name {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

func level(name string) log.Level {
	switch name {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
