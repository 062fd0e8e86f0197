// Package common provides shared utilities and types used across violet.
package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	// LogLevelNone disables logging
	LogLevelNone LogLevel = iota
	// LogLevelFatal logs only unrecoverable errors
	LogLevelFatal
	// LogLevelError logs errors
	LogLevelError
	// LogLevelWarn logs warnings and errors
	LogLevelWarn
	// LogLevelInfo logs information, warnings and errors
	LogLevelInfo
	// LogLevelDebug logs detailed debug information
	LogLevelDebug
	// LogLevelVerbose logs everything, including per-packet tracing
	LogLevelVerbose
)

var levelNames = map[LogLevel]string{
	LogLevelNone:    "none",
	LogLevelFatal:   "fatal",
	LogLevelError:   "error",
	LogLevelWarn:    "warn",
	LogLevelInfo:    "info",
	LogLevelDebug:   "debug",
	LogLevelVerbose: "verbose",
}

// String returns the name accepted by ParseLogLevel
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel converts a level name to a LogLevel.
//
// Parameters:
//   - level: One of none, fatal, error, warn, info, debug or verbose (case insensitive)
//
// Returns:
//   - The LogLevel
//   - An error if the name is unknown
func ParseLogLevel(level string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", level)
}

// LogLevelFromString converts a string representation to a LogLevel,
// falling back to info for unknown names.
func LogLevelFromString(level string) LogLevel {
	l, err := ParseLogLevel(level)
	if err != nil {
		return LogLevelInfo
	}
	return l
}

// Logger provides a structured logging interface for the application
type Logger struct {
	// The underlying Go logger
	*log.Logger
	// The logging level
	level LogLevel
	// The log file path (if used)
	filePath string
	// The log file handle (if used)
	file *os.File
}

// NewLogger creates a new Logger instance
//
// Parameters:
//   - prefix: The prefix for all log messages
//   - filePath: Path to the log file (empty string logs to stdout)
//   - level: The logging verbosity level
//   - truncate: If true, truncate the log file; if false, append to it
//
// Returns:
//   - A new Logger instance
//   - An error if the log file cannot be opened
func NewLogger(prefix string, filePath string, level LogLevel, truncate bool) (*Logger, error) {
	var writer io.Writer
	var file *os.File
	var err error

	switch {
	case filePath != "":
		flags := os.O_WRONLY | os.O_CREATE
		if truncate {
			flags |= os.O_TRUNC
		} else {
			flags |= os.O_APPEND
		}

		file, err = os.OpenFile(filePath, flags, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
	case level == LogLevelNone:
		writer = io.Discard
	default:
		writer = os.Stdout
	}

	return newLogger(writer, prefix, filePath, file, level), nil
}

// NewWriterLogger creates a Logger that writes to w. It is mostly useful in
// tests, where the output has to be captured.
func NewWriterLogger(w io.Writer, prefix string, level LogLevel) *Logger {
	return newLogger(w, prefix, "", nil, level)
}

func newLogger(w io.Writer, prefix, filePath string, file *os.File, level LogLevel) *Logger {
	return &Logger{
		Logger:   log.New(w, prefix, log.Ldate|log.Ltime),
		level:    level,
		filePath: filePath,
		file:     file,
	}
}

// Close closes the log file if it's open
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) logf(level LogLevel, tag, format string, v ...interface{}) {
	if l == nil || l.level < level {
		return
	}
	_ = l.Output(3, tag+" "+fmt.Sprintf(format, v...))
}

// Verbose logs a message at verbose level
func (l *Logger) Verbose(format string, v ...interface{}) {
	l.logf(LogLevelVerbose, "[VERBOSE]", format, v...)
}

// Debug logs a message at debug level
func (l *Logger) Debug(format string, v ...interface{}) {
	l.logf(LogLevelDebug, "[DEBUG]", format, v...)
}

// Info logs a message at info level
func (l *Logger) Info(format string, v ...interface{}) {
	l.logf(LogLevelInfo, "[INFO]", format, v...)
}

// Warn logs a message at warning level
func (l *Logger) Warn(format string, v ...interface{}) {
	l.logf(LogLevelWarn, "[WARN]", format, v...)
}

// Error logs a message at error level
func (l *Logger) Error(format string, v ...interface{}) {
	l.logf(LogLevelError, "[ERROR]", format, v...)
}

// Fatal logs a message at fatal level. Unlike log.Fatal it does not exit.
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.logf(LogLevelFatal, "[FATAL]", format, v...)
}

// FilePath returns the current log file path
func (l *Logger) FilePath() string {
	return l.filePath
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

// SetLevel changes the current log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

//////////////////////////////////////////////////////////////////////

// GetLogger returns the global application logger.
// If the logger hasn't been initialized yet, it returns a default stdout logger.
func GetLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	logger, err := NewLogger("[violet] ", "", LogLevelInfo, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating default logger: %v\n", err)
		return NewWriterLogger(os.Stderr, "[violet] ", LogLevelError)
	}
	return logger
}

// SetLogger sets the global application logger
func SetLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}
