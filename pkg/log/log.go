// Package log provides a leveled logger with structured logging support.
package log

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Fields is a map of structured log fields.
type Fields = logrus.Fields

// Logger is the logging interface threaded through the rest of the codebase.
// It wraps logrus so that call sites never depend on logrus directly.
type Logger interface {
	// Clone creates a new Logger instance carrying the same fields and level.
	Clone() Logger

	// Level returns the current log level.
	Level() Level

	// SetLevel parses and sets the log level from its string name.
	SetLevel(str string) error

	// SetOutput redirects all log output to the given writer.
	SetOutput(w io.Writer)

	// WithField returns a Logger with the given field attached.
	WithField(key string, value any) Logger

	// WithFields returns a Logger with all given fields attached.
	WithFields(fields Fields) Logger

	// WithError returns a Logger with the error attached as a field.
	WithError(err error) Logger

	// Writer returns a writer that logs each written line at the Info level.
	Writer() *io.PipeWriter

	// WriterLevel returns a writer that logs each written line at the given level.
	WriterLevel(level Level) *io.PipeWriter

	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type logger struct {
	*logrus.Entry
}

// New returns a Logger writing to stderr at the default level.
func New(opts ...Option) Logger {
	parent := logrus.New()
	parent.SetOutput(os.Stderr)
	parent.SetLevel(logrus.InfoLevel)
	parent.SetFormatter(&logrus.TextFormatter{
		DisableColors:   !isatty.IsTerminal(os.Stderr.Fd()),
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	l := &logger{Entry: logrus.NewEntry(parent)}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Logger created by New.
type Option func(*logger)

// WithOutput sets the writer the logger writes to.
func WithOutput(w io.Writer) Option {
	return func(l *logger) {
		l.Entry.Logger.SetOutput(w)
	}
}

// WithLevel sets the initial log level.
func WithLevel(level Level) Option {
	return func(l *logger) {
		l.Entry.Logger.SetLevel(logrus.Level(level))
	}
}

// WithFormatter sets the logrus formatter.
func WithFormatter(formatter logrus.Formatter) Option {
	return func(l *logger) {
		l.Entry.Logger.SetFormatter(formatter)
	}
}

func (l *logger) Clone() Logger {
	parent := logrus.New()
	parent.SetOutput(l.Entry.Logger.Out)
	parent.SetLevel(l.Entry.Logger.GetLevel())
	parent.SetFormatter(l.Entry.Logger.Formatter)

	return &logger{Entry: logrus.NewEntry(parent).WithFields(l.Entry.Data)}
}

func (l *logger) Level() Level {
	return Level(l.Entry.Logger.GetLevel())
}

func (l *logger) SetLevel(str string) error {
	level, err := ParseLevel(str)
	if err != nil {
		return err
	}

	l.Entry.Logger.SetLevel(logrus.Level(level))

	return nil
}

func (l *logger) SetOutput(w io.Writer) {
	l.Entry.Logger.SetOutput(w)
}

func (l *logger) WithField(key string, value any) Logger {
	return &logger{Entry: l.Entry.WithField(key, value)}
}

func (l *logger) WithFields(fields Fields) Logger {
	return &logger{Entry: l.Entry.WithFields(fields)}
}

func (l *logger) WithError(err error) Logger {
	return &logger{Entry: l.Entry.WithError(err)}
}

func (l *logger) Writer() *io.PipeWriter {
	return l.Entry.Writer()
}

func (l *logger) WriterLevel(level Level) *io.PipeWriter {
	return l.Entry.WriterLevel(logrus.Level(level))
}

type ctxKey struct{}

// ContextWithLogger returns a context carrying the given logger.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// LoggerFromContext returns the logger stored in the context, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}

	return nil
}
