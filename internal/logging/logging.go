package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// Options configures the process logger
type Options struct {
	Level     string // debug, info, warn, error; default warn
	Format    string // text or json
	File      string // optional JSON-lines file
	FileLevel string // level for File; default info
	Out       io.Writer

	// Fields are attached to every entry
	Fields logrus.Fields
}

// Setup builds the logger every component receives. The returned closer
// releases the log file, if any.
func Setup(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q (expected text or json)", opts.Format)
	}

	level := parseLevel(opts.Level, logrus.WarnLevel)
	logger.SetLevel(level)

	if len(opts.Fields) > 0 {
		logger.AddHook(NewFieldsHook(opts.Fields))
	}

	if opts.File == "" {
		return logger, nopCloser{}, nil
	}

	file, err := NewFileOutput(opts.File)
	if err != nil {
		return nil, nil, err
	}
	fileLevel := parseLevel(opts.FileLevel, logrus.InfoLevel)

	// the logger filters before hooks run, so it has to admit the more
	// verbose of the two levels and the console gets its own hook
	if fileLevel > level {
		logger.SetLevel(fileLevel)
		logger.SetOutput(io.Discard)
		logger.AddHook(&writer.Hook{Writer: out, LogLevels: levelsUpTo(level)})
	}
	logger.AddHook(NewOutputHook(file, fileLevel))
	return logger, file, nil
}

func levelsUpTo(min logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return levels
}

func parseLevel(s string, fallback logrus.Level) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return fallback
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
