package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// LevelDebug is the most verbose logging level
	LevelDebug Level = iota
	// LevelInfo logs informational messages
	LevelInfo
	// LevelWarn logs warnings
	LevelWarn
	// LevelError logs errors
	LevelError
	// LevelNone disables all logging
	LevelNone
)

// StderrPath selects standard error as the log destination.
const StderrPath = "-"

// String returns string representation of log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off":
		return LevelNone
	default:
		return LevelInfo
	}
}

// core is shared between a logger and the prefixed loggers derived from it,
// so a level change on the root is seen by every derived logger.
type core struct {
	mu     sync.RWMutex
	level  Level
	logger *log.Logger
	file   *os.File
}

// Logger provides leveled, prefixed logging
type Logger struct {
	core   *core
	prefix string
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Init initializes the global logger. Calling Init again replaces it and
// closes the previous log file.
func Init(level Level, logPath string) error {
	l, err := New(level, logPath, "")
	if err != nil {
		return err
	}
	globalMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// New creates a new Logger instance. An empty logPath discards output and
// StderrPath writes to standard error.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	switch {
	case level == LevelNone || logPath == "":
		return NewWriter(LevelNone, io.Discard, prefix), nil
	case logPath == StderrPath:
		return NewWriter(level, os.Stderr, prefix), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriter(level, file, prefix)
	l.core.file = file
	return l, nil
}

// NewWriter creates a logger writing to w.
func NewWriter(level Level, w io.Writer, prefix string) *Logger {
	return &Logger{
		core: &core{
			level:  level,
			logger: log.New(w, "", 0),
		},
		prefix: prefix,
	}
}

// Global returns the global logger instance
func Global() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewWriter(LevelNone, io.Discard, "")
	}
	return globalLogger
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := prefix
	if l.prefix != "" {
		newPrefix = l.prefix + ":" + prefix
	}
	return &Logger{core: l.core, prefix: newPrefix}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return l.core.level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()

	if level < l.core.level || l.core.level == LevelNone {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	prefix := l.prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}

	l.core.logger.Printf("%s [%s] %s%s", timestamp, level.String(), prefix, msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Close closes the logger and its underlying file
func (l *Logger) Close() error {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if l.core.file != nil {
		err := l.core.file.Close()
		l.core.file = nil
		return err
	}
	return nil
}

// Global logging functions for convenience

// Debug logs a debug message using the global logger
func Debug(format string, args ...interface{}) {
	Global().Debug(format, args...)
}

// Info logs an informational message using the global logger
func Info(format string, args ...interface{}) {
	Global().Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(format string, args ...interface{}) {
	Global().Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...interface{}) {
	Global().Error(format, args...)
}
