// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level and output format
type Options struct {
	Level  string
	Format string // console or json
}

// New builds a logger writing to stderr
func New(opts Options) (zerolog.Logger, error) {
	return NewWithWriter(opts, os.Stderr)
}

// NewWithWriter builds a logger writing to w
func NewWithWriter(opts Options, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: !isTerminal(w)}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", opts.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
