package log

import "sync"

// NoopLogger implements Logger by discarding all log messages.
type NoopLogger struct{}

// NewNoopLogger creates a new no-op logger.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Debug discards the message.
func (NoopLogger) Debug(msg string, fields ...Field) {}

// Info discards the message.
func (NoopLogger) Info(msg string, fields ...Field) {}

// Warn discards the message.
func (NoopLogger) Warn(msg string, fields ...Field) {}

// Error discards the message.
func (NoopLogger) Error(msg string, fields ...Field) {}

// Entry is a message captured by a RecordingLogger.
type Entry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field returns the value of the named field and whether it was present.
func (e Entry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// RecordingLogger keeps every message in memory. It is safe for concurrent
// use and intended for tests.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (r *RecordingLogger) add(level Level, msg string, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Fields: append([]Field(nil), fields...)})
}

// Debug records a debug message.
func (r *RecordingLogger) Debug(msg string, fields ...Field) { r.add(DebugLevel, msg, fields) }

// Info records an info message.
func (r *RecordingLogger) Info(msg string, fields ...Field) { r.add(InfoLevel, msg, fields) }

// Warn records a warning message.
func (r *RecordingLogger) Warn(msg string, fields ...Field) { r.add(WarnLevel, msg, fields) }

// Error records an error message.
func (r *RecordingLogger) Error(msg string, fields ...Field) { r.add(ErrorLevel, msg, fields) }

// Entries returns a copy of everything recorded so far.
func (r *RecordingLogger) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Find returns the recorded entries at level whose message equals msg.
func (r *RecordingLogger) Find(level Level, msg string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Level == level && e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of recorded entries at level.
func (r *RecordingLogger) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
