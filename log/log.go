// Package log carries a logrus-backed Logger through contexts so that request
// and repository fields follow every log line of an operation.
package log

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logger used across the registry.
type Logger interface {
	Trace(args ...interface{})
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})

	WithError(error) Logger
	WithField(key string, value interface{}) Logger
	WithFields(Fields) Logger

	// Writer returns a pipe that writes each line at info level. Callers must
	// close it.
	Writer() *io.PipeWriter
}

// Fields is an alias so that callers only need to know about this package
type Fields = logrus.Fields

type loggerKey struct{}

type wrapper struct {
	*logrus.Entry
}

// FromLogrusLogger converts a logrus.Logger into Logger.
func FromLogrusLogger(l *logrus.Logger) Logger {
	return &wrapper{logrus.NewEntry(l)}
}

// ToLogrusEntry returns the entry behind l.
func ToLogrusEntry(l Logger) (*logrus.Entry, error) {
	w, ok := l.(*wrapper)
	if !ok {
		return nil, errors.New("base logger is not a wrapper")
	}
	return w.Entry, nil
}

func (w *wrapper) WithError(err error) Logger {
	return &wrapper{w.Entry.WithError(err)}
}

func (w *wrapper) WithField(key string, value interface{}) Logger {
	return &wrapper{w.Entry.WithField(standardizedKey(key), value)}
}

func (w *wrapper) WithFields(f Fields) Logger {
	std := make(Fields, len(f))
	for k, v := range f {
		std[standardizedKey(k)] = v
	}
	return &wrapper{w.Entry.WithFields(std)}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Option configures GetLogger.
type Option func(*context.Context)

// WithContext makes GetLogger return the logger carried by ctx.
func WithContext(ctx context.Context) Option {
	return func(c *context.Context) {
		*c = ctx
	}
}

// GetLogger returns the logger of the context given with WithContext, or the
// standard logger tagged with the Go version.
func GetLogger(opts ...Option) Logger {
	ctx := context.Background()
	for _, o := range opts {
		o(&ctx)
	}

	if l, ok := ctx.Value(loggerKey{}).(*wrapper); ok {
		return l
	}
	return &wrapper{logrus.StandardLogger().WithField("go_version", runtime.Version())}
}

// standardizedKey replaces dots with underscores so application and access
// logs share one naming convention.
func standardizedKey(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}
