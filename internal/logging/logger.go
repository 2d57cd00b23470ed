// Package logging provides structured, leveled logging for bdcraft.
//
// Initialize the logger once at process start, then obtain named loggers:
//
//	logging.Initialize("info", map[string]string{"cache.*": "debug"})
//	logger := logging.GetLogger("lifecycle.manager")
//	logger.Info("Activating %s", name)
//
// Structured fields can be attached per call or persistently:
//
//	logger.WarnWithFields("missing dependency",
//	    logging.Field("component", name),
//	    logging.Field("dependency", dep),
//	)
//	componentLogger := logger.WithField("component", name)
//
// Per-package overrides match logger names exactly or by "prefix.*"
// wildcard; the longest matching pattern wins. Output is rendered by zap:
// DEBUG, INFO and WARN go to stdout, ERROR and FATAL to stderr.
//
// Set LOG_TIMESTAMP to pin the timestamp in tests.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalMu    sync.RWMutex
	globalLevel = INFO
	// exitFunc is called by Fatal; tests replace it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// An unknown default level falls back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalMu.Lock()
	globalLevel = level
	globalMu.Unlock()

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}
	return nil
}

// GetLogger returns a logger with the specified name.
func GetLogger(name string) *Logger {
	globalMu.RLock()
	level := globalLevel
	globalMu.RUnlock()

	return &Logger{
		level:  level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// Name returns the logger name.
func (l *Logger) Name() string {
	return l.name
}

// shouldLog checks per-package overrides first, then the logger's own level.
func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// Fatal logs a fatal message and exits the program with code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs msg followed by err.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(ERROR, msg+" - %v", args...)
	}
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(DEBUG, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(INFO, msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(WARN, msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, fields...)
	}
}

// FatalWithFields logs a fatal message with structured fields and exits with code 1
func (l *Logger) FatalWithFields(msg string, fields ...LogField) {
	if l.shouldLog(FATAL) {
		l.logWithFields(FATAL, msg, fields...)
		exitFunc(1)
	}
}

// WithName returns a copy of the logger under a different name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		level:  l.level,
		name:   name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
}

// WithField returns a copy of the logger carrying one extra persistent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	next := l.WithName(l.name)
	next.fields[key] = value
	return next
}

// WithFields returns a copy of the logger carrying extra persistent fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	next := l.WithName(l.name)
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

// WithContext returns a copy of the logger that extracts trace_id and span_id from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	next := l.WithName(l.name)
	next.ctx = ctx
	return next
}
