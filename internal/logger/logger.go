// Package logger provides structured logging functionality for the hvmigrate CLI tool.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger provides leveled logging with optional per-host fields.
// A Logger and every child returned by WithField are safe for concurrent use.
type Logger struct {
	entry   *logrus.Entry
	debug   bool
	logFile *os.File
}

func newBase(out io.Writer, debug bool) *logrus.Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	base.SetLevel(logrus.InfoLevel)
	if debug {
		base.SetLevel(logrus.DebugLevel)
	}
	return base
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	return &Logger{entry: logrus.NewEntry(newBase(os.Stderr, debug)), debug: debug}
}

// NewWithWriter creates a Logger writing to out.
func NewWithWriter(out io.Writer, debug bool) *Logger {
	return &Logger{entry: logrus.NewEntry(newBase(out, debug)), debug: debug}
}

// NewWithFile creates a new Logger instance that writes to both console and a file.
func NewWithFile(debug bool, logFilePath string) (*Logger, error) {
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	multiWriter := io.MultiWriter(os.Stderr, logFile)
	return &Logger{
		entry:   logrus.NewEntry(newBase(multiWriter, debug)),
		debug:   debug,
		logFile: logFile,
	}, nil
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// WithField returns a child logger that adds key=value to every line.
// Children share the parent's output and must not be closed.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), debug: l.debug}
}

// WithHost is shorthand for WithField("host", hostname).
func (l *Logger) WithHost(hostname string) *Logger {
	return l.WithField("host", hostname)
}

// Info logs an informational message.
func (l *Logger) Info(msg string) {
	l.entry.Info(msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Success logs a success message.
func (l *Logger) Success(msg string) {
	l.entry.WithField("status", "done").Info(msg)
}

// Successf logs a formatted success message.
func (l *Logger) Successf(format string, args ...interface{}) {
	l.entry.WithField("status", "done").Infof(format, args...)
}

// Warning logs a warning message.
func (l *Logger) Warning(msg string) {
	l.entry.Warn(msg)
}

// Warningf logs a formatted warning message.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.entry.Error(msg)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message (only if debug mode is enabled).
func (l *Logger) Debug(msg string) {
	l.entry.Debug(msg)
}

// Debugf logs a formatted debug message (only if debug mode is enabled).
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Step logs a step header for workflow progress.
func (l *Logger) Step(stepName string, hosts int) {
	l.Info("=========================================")
	l.Infof("Step %s on %d hypervisor(s)", stepName, hosts)
	l.Info("=========================================")
}

// GetTimestamp returns a timestamp string in the format YYYYMMDD-HHMMSS.
func GetTimestamp() string {
	return time.Now().Format("20060102-150405")
}
