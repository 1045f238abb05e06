package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputHook is a logrus hook that sends logs to an Output
type OutputHook struct {
	output Output
	levels []logrus.Level
}

// NewOutputHook creates a hook firing for every level at or above min
func NewOutputHook(output Output, min logrus.Level) *OutputHook {
	return &OutputHook{output: output, levels: levelsUpTo(min)}
}

// Levels returns the log levels this hook should fire for
func (h *OutputHook) Levels() []logrus.Level {
	return h.levels
}

// Fire writes the entry synchronously; the process may exit right after
// the last log line.
func (h *OutputHook) Fire(entry *logrus.Entry) error {
	logEntry := &LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    make(map[string]any, len(entry.Data)),
	}

	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		logEntry.Fields[k] = v
	}

	if err := h.output.Write(logEntry); err != nil {
		// not through the logger: that would fire this hook again
		fmt.Fprintf(os.Stderr, "failed to write log output: %v\n", err)
	}
	return nil
}

// FieldsHook stamps fixed fields, such as the run ID, on every entry
type FieldsHook struct {
	fields logrus.Fields
}

// NewFieldsHook creates a hook adding fields to each entry
func NewFieldsHook(fields logrus.Fields) *FieldsHook {
	return &FieldsHook{fields: fields}
}

// Levels returns all levels
func (h *FieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire adds the fields without overriding ones set at the call site
func (h *FieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}
