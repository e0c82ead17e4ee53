// Package logging provides level-based logging for the engine and CLI,
// always writing to stderr so a future stdio-based collaborator (an MCP
// tool server, a pipe-driven worker) never has its stdout polluted.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger wraps the standard library's log.Logger with an info/debug/error
// level split.
type Logger struct {
	debugEnabled bool
	infoLogger   *log.Logger
	debugLogger  *log.Logger
}

var globalLogger *Logger

// Initialize sets up the global logger. Call once at process start.
func Initialize(debugMode bool) {
	var output io.Writer = os.Stderr
	globalLogger = &Logger{
		debugEnabled: debugMode,
		infoLogger:   log.New(output, "", log.LstdFlags),
		debugLogger:  log.New(output, "", log.LstdFlags),
	}
}

// Info logs an informational message (always shown).
func Info(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.infoLogger.Printf(format, args...)
	}
}

// Debug logs a debug message, only shown when debug mode is enabled.
func Debug(format string, args ...interface{}) {
	if globalLogger != nil && globalLogger.debugEnabled {
		globalLogger.debugLogger.Printf("DEBUG: "+format, args...)
	}
}

// Error logs an error message (always shown).
func Error(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.infoLogger.Printf("ERROR: "+format, args...)
	}
}

// IsDebugEnabled reports whether debug logging is on.
func IsDebugEnabled() bool {
	return globalLogger != nil && globalLogger.debugEnabled
}
