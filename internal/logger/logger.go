package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Level thresholds, lowest first.
const (
	levelInfo = iota
	levelWarning
	levelError
)

// Logger provides leveled logging (info/warning/error) to files and
// stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	minLevel   int
	mu         sync.Mutex
}

// NewLogger creates a Logger writing under logDir and ensures the directory
// exists. level is one of "info", "warning", "error"; entries below it are
// dropped.
func NewLogger(logDir, level string) *Logger {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	l := &Logger{minLevel: parseLevel(level)}
	l.setupLoggers(logDir)
	return l
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers(logDir string) {
	infoFile := openLogFile(filepath.Join(logDir, "info.log"))
	warningFile := openLogFile(filepath.Join(logDir, "warning.log"))
	errorFile := openLogFile(filepath.Join(logDir, "error.log"))

	l.infoLog = log.New(io.MultiWriter(os.Stdout, infoFile), "INFO    ", log.Ldate|log.Ltime|log.Lshortfile)
	l.warningLog = log.New(io.MultiWriter(os.Stdout, warningFile), "WARNING ", log.Ldate|log.Ltime|log.Lshortfile)
	l.errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR   ", log.Ldate|log.Ltime|log.Lshortfile)
}

// openLogFile opens or creates a log file for appending.
func openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

func parseLevel(level string) int {
	switch level {
	case "warning", "warn":
		return levelWarning
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	if l.minLevel > levelInfo {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	if l.minLevel > levelWarning {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}
