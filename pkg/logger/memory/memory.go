// Package memory provides a LoggerInstance that keeps entries in memory.
// Tests install it to assert on what was logged and at which level.
package memory

import (
	"fmt"
	"strings"
	"sync"
)

type Level string

const (
	LevelLog   Level = "log"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Entry is a single captured log call.
type Entry struct {
	Level   Level
	Message string
	Keyvals []any
}

// Value returns the value logged for key, if present.
func (e Entry) Value(key string) (any, bool) {
	for i := 0; i+1 < len(e.Keyvals); i += 2 {
		if k, ok := e.Keyvals[i].(string); ok && k == key {
			return e.Keyvals[i+1], true
		}
	}
	return nil, false
}

func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Level, e.Message)
	for i := 0; i+1 < len(e.Keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.Keyvals[i], e.Keyvals[i+1])
	}
	return b.String()
}

// MemoryLogger records every call. Fatal does not exit.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (m *MemoryLogger) record(level Level, message string, keyvals []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kv := make([]any, len(keyvals))
	copy(kv, keyvals)
	m.entries = append(m.entries, Entry{Level: level, Message: message, Keyvals: kv})
}

func (m *MemoryLogger) Log(message string, keyvals ...any)   { m.record(LevelLog, message, keyvals) }
func (m *MemoryLogger) Debug(message string, keyvals ...any) { m.record(LevelDebug, message, keyvals) }
func (m *MemoryLogger) Info(message string, keyvals ...any)  { m.record(LevelInfo, message, keyvals) }
func (m *MemoryLogger) Warn(message string, keyvals ...any)  { m.record(LevelWarn, message, keyvals) }
func (m *MemoryLogger) Error(message string, keyvals ...any) { m.record(LevelError, message, keyvals) }
func (m *MemoryLogger) Fatal(message string, keyvals ...any) { m.record(LevelFatal, message, keyvals) }

// Entries returns a copy of all captured entries.
func (m *MemoryLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ByLevel returns the captured entries logged at level.
func (m *MemoryLogger) ByLevel(level Level) []Entry {
	out := make([]Entry, 0)
	for _, e := range m.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all captured entries.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}
