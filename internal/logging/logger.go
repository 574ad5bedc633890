// Package logging provides structured JSON logging for campusync.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Fields is the structured context attached to a log entry.
type Fields map[string]interface{}

// ParseLevel maps a case-insensitive level name to a LogLevel.
// Unknown names fall back to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// sink is shared by a logger and every logger derived from it with With.
type sink struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel LogLevel
}

// Logger provides structured JSON logging.
type Logger struct {
	sink   *sink
	fields Fields
}

var (
	// global logger instance
	global *Logger
	once   sync.Once
)

// New creates a logger writing JSON lines to out.
func New(out io.Writer, minLevel LogLevel) *Logger {
	return &Logger{sink: &sink{out: out, minLevel: minLevel}}
}

// Init initializes the global logger.
func Init(out io.Writer, minLevel LogLevel) {
	once.Do(func() {
		global = New(out, minLevel)
	})
}

// Get returns the global logger instance.
func Get() *Logger {
	if global == nil {
		Init(os.Stderr, LevelInfo)
	}
	return global
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(io.Discard, LevelError)
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// With returns a logger that adds fields to every entry it writes.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{sink: l.sink, fields: merged}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.sink.minLevel]
}

func (l *Logger) log(level LogLevel, message, code string, err error, context Fields) {
	if !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Message:   message,
		Code:      code,
		Context:   l.merge(context),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		log.Printf("Failed to marshal log entry: %v\n", jsonErr)
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	fmt.Fprintln(l.sink.out, string(data))
}

// merge combines bound fields with per-call context; per-call keys win.
func (l *Logger) merge(context Fields) map[string]interface{} {
	if len(l.fields) == 0 && len(context) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(l.fields)+len(context))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range context {
		merged[k] = v
	}
	return merged
}

func collapse(context []Fields) Fields {
	switch len(context) {
	case 0:
		return nil
	case 1:
		return context[0]
	}
	merged := make(Fields)
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...Fields) {
	l.log(LevelDebug, message, "", nil, collapse(context))
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...Fields) {
	l.log(LevelInfo, message, "", nil, collapse(context))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...Fields) {
	l.log(LevelWarn, message, "", nil, collapse(context))
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...Fields) {
	l.log(LevelError, message, "", err, collapse(context))
}

// ErrorWithCode logs an error message tagged with an error code.
func (l *Logger) ErrorWithCode(message, code string, err error, context ...Fields) {
	l.log(LevelError, message, code, err, collapse(context))
}

// Convenience functions using global logger

func Debug(message string, context ...Fields) {
	Get().Debug(message, context...)
}

func Info(message string, context ...Fields) {
	Get().Info(message, context...)
}

func Warn(message string, context ...Fields) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...Fields) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message, code string, err error, context ...Fields) {
	Get().ErrorWithCode(message, code, err, context...)
}
