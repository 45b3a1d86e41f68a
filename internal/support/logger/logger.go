// Package logger provides the level-filtered logger used across bikeshare.
// It wraps the standard `log` package and prefixes every line with its level.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
// Smaller numbers indicate more detailed log levels.
type LogLevel int32

const (
	// LevelDebug is used for detailed debugging information, including TRACE.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general informational messages.
	LevelInfo
	// LevelWarn is used for potential issues.
	LevelWarn
	// LevelError is used for error messages.
	LevelError
	// LevelFatal is used for messages that terminate the process.
	LevelFatal
	// LevelSilent suppresses all output except Fatalf.
	LevelSilent
)

var levelNames = map[string]LogLevel{
	"TRACE":  LevelDebug,
	"DEBUG":  LevelDebug,
	"INFO":   LevelInfo,
	"WARN":   LevelWarn,
	"ERROR":  LevelError,
	"FATAL":  LevelFatal,
	"SILENT": LevelSilent,
}

// current holds the active level. It is read on every log call from
// concurrent HTTP handlers, hence the atomic.
var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// SetLogLevel sets the global log level.
// Valid values are "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL" and "SILENT"
// (case-insensitive). Unknown values fall back to INFO with a notice on stderr.
func SetLogLevel(level string) {
	lvl, ok := levelNames[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		lvl = LevelInfo
	}
	current.Store(int32(lvl))
}

// Level returns the active log level.
func Level() LogLevel {
	return LogLevel(current.Load())
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func logf(level LogLevel, prefix, format string, v ...interface{}) {
	if Level() <= level {
		log.Printf(prefix+format, v...)
	}
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	logf(LevelDebug, "[DEBUG] ", format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	logf(LevelInfo, "[INFO] ", format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	logf(LevelWarn, "[WARN] ", format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	logf(LevelError, "[ERROR] ", format, v...)
}

// Fatalf formats and outputs a FATAL level log message,
// then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
