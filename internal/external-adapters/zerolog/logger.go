// Package zerolog adapts rs/zerolog to the domain Logger interface.
package zerolog

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures a Logger
type Options struct {
	Format  string // console or json
	Verbose bool   // enables debug level
	Out     io.Writer
}

// Logger implements interfaces.Logger on top of zerolog
type Logger struct {
	zlog zerolog.Logger
}

var _ interfaces.Logger = (*Logger)(nil)

// New creates a logger. Console output is human readable with short
// timestamps; json emits one object per line.
func New(opts Options) (*Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	switch opts.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: !isTerminal(out)}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q (want console or json)", opts.Format)
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	return &Logger{
		zlog: zerolog.New(out).Level(level).With().Timestamp().Logger(),
	}, nil
}

// With returns a child logger that adds the fields to every entry
func (l *Logger) With(fields ...interfaces.Field) *Logger {
	ctx := l.zlog.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{zlog: ctx.Logger()}
}

// Debug logs debug-level messages
func (l *Logger) Debug(msg string, fields ...interfaces.Field) {
	emit(l.zlog.Debug(), msg, fields)
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields ...interfaces.Field) {
	emit(l.zlog.Info(), msg, fields)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields ...interfaces.Field) {
	emit(l.zlog.Warn(), msg, fields)
}

// Error logs error messages
func (l *Logger) Error(msg string, fields ...interfaces.Field) {
	emit(l.zlog.Error(), msg, fields)
}

func emit(e *zerolog.Event, msg string, fields []interfaces.Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			e = e.AnErr(f.Key, v)
		case string:
			e = e.Str(f.Key, v)
		case int:
			e = e.Int(f.Key, v)
		case bool:
			e = e.Bool(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}
	e.Msg(msg)
}

// isTerminal reports whether w is a terminal; color is off otherwise
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
