package log

import (
	"fmt"
	"strings"
	"time"
)

// Logger provides structured logging capabilities.
// Implementations can wrap zerolog, the host console, or anything else.
type Logger interface {
	// Debug logs a debug-level message with fields.
	Debug(msg string, fields ...Field)

	// Info logs an info-level message with fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning-level message with fields.
	Warn(msg string, fields ...Field)

	// Error logs an error-level message with fields.
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	Disabled
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name. Accepts debug, info, warn/warning, error,
// and off/disabled/none.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "disabled", "none":
		return Disabled, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
}

// With returns a Logger that appends fields to every message.
func With(logger Logger, fields ...Field) Logger {
	if len(fields) == 0 {
		return logger
	}
	if w, ok := logger.(*withLogger); ok {
		merged := make([]Field, 0, len(w.fields)+len(fields))
		merged = append(merged, w.fields...)
		merged = append(merged, fields...)
		return &withLogger{next: w.next, fields: merged}
	}
	return &withLogger{next: logger, fields: fields}
}

type withLogger struct {
	next   Logger
	fields []Field
}

func (w *withLogger) join(fields []Field) []Field {
	out := make([]Field, 0, len(w.fields)+len(fields))
	out = append(out, w.fields...)
	return append(out, fields...)
}

func (w *withLogger) Debug(msg string, fields ...Field) { w.next.Debug(msg, w.join(fields)...) }
func (w *withLogger) Info(msg string, fields ...Field)  { w.next.Info(msg, w.join(fields)...) }
func (w *withLogger) Warn(msg string, fields ...Field)  { w.next.Warn(msg, w.join(fields)...) }
func (w *withLogger) Error(msg string, fields ...Field) { w.next.Error(msg, w.join(fields)...) }

// Multi returns a Logger that writes every message to all given loggers.
// Nil loggers are skipped.
func Multi(loggers ...Logger) Logger {
	out := make(multiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

type multiLogger []Logger

func (m multiLogger) Debug(msg string, fields ...Field) {
	for _, l := range m {
		l.Debug(msg, fields...)
	}
}

func (m multiLogger) Info(msg string, fields ...Field) {
	for _, l := range m {
		l.Info(msg, fields...)
	}
}

func (m multiLogger) Warn(msg string, fields ...Field) {
	for _, l := range m {
		l.Warn(msg, fields...)
	}
}

func (m multiLogger) Error(msg string, fields ...Field) {
	for _, l := range m {
		l.Error(msg, fields...)
	}
}
