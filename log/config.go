package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	TextFormatter = "text"
	JSONFormatter = "json"
)

// Config configures the standard logger.
type Config struct {
	Level     string
	Formatter string
	Fields    map[string]interface{}
	Output    io.Writer
}

// Configure applies cfg to the logrus standard logger and returns the base
// Logger carrying the static fields.
func Configure(cfg Config) (Logger, error) {
	std := logrus.StandardLogger()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	std.SetLevel(lvl)

	switch cfg.Formatter {
	case "", TextFormatter:
		std.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	case JSONFormatter:
		std.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, fmt.Errorf("unsupported log formatter: %q", cfg.Formatter)
	}

	if cfg.Output != nil {
		std.SetOutput(cfg.Output)
	} else {
		std.SetOutput(os.Stdout)
	}

	l := FromLogrusLogger(std)
	if len(cfg.Fields) > 0 {
		l = l.WithFields(Fields(cfg.Fields))
	}

	return l, nil
}
