// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/volstore/volstore/pkg/errors"
)

// Output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to out at the given level. FormatAuto picks the
// console writer when out is a terminal and JSON otherwise.
func New(level, format string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), errors.Wrap(errors.ErrCodeInvalidConfig, "invalid log level: "+level, err).
			WithComponent("logger")
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	w, err := writer(format, out)
	if err != nil {
		return zerolog.Nop(), err
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func writer(format string, out io.Writer) (io.Writer, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return out, nil
	case FormatConsole:
		return console(out), nil
	case FormatAuto, "":
		if isTerminal(out) {
			return console(out), nil
		}
		return out, nil
	}
	return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid log format: "+format).
		WithComponent("logger")
}

func console(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    !isTerminal(out),
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
