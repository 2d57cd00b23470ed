package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	strError   = "ERROR"
	levelFatal = "FATAL"
)

var (
	coreMu sync.RWMutex
	core   = newCore(os.Stdout, os.Stderr)
)

// SetOutput redirects log output. DEBUG..WARN go to stdout, ERROR and FATAL to stderr.
// Intended for tests and for embedding the kernel in another process.
func SetOutput(stdout, stderr io.Writer) {
	c := newCore(stdout, stderr)
	coreMu.Lock()
	core = c
	coreMu.Unlock()
}

// newCore builds the zap core shared by every Logger.
// Level filtering happens in Logger.shouldLog; the core only routes by severity.
func newCore(stdout, stderr io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      encodeLevel,
		EncodeTime:       encodeTime,
		EncodeName:       encodeName,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.ErrorLevel })
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })

	return zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stdout)), low),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stderr)), high),
	)
}

func encodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + timestampFor(t) + "]")
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

func encodeName(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(name + ":")
}

// writeLog emits one entry through the shared zap core.
// Fields are sorted by key so output is stable.
func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	coreMu.RLock()
	c := core
	coreMu.RUnlock()

	entry := zapcore.Entry{
		Level:      level.zapLevel(),
		Time:       time.Now(),
		LoggerName: l.name,
		Message:    msg,
	}

	ce := c.Check(entry, nil)
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zfields := make([]zapcore.Field, 0, len(keys))
	for _, k := range keys {
		zfields = append(zfields, zap.Any(k, fields[k]))
	}
	ce.Write(zfields...)
}

// logf formats msg and writes it with the logger's persistent and context fields.
func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	l.writeLog(level, formatted, mergeFields(extractContextFields(l.ctx), l.fields, nil))
}

// logWithFields writes msg with call-site fields on top of persistent and context fields.
func (l *Logger) logWithFields(level LogLevel, msg string, fields ...LogField) {
	l.writeLog(level, msg, mergeFields(extractContextFields(l.ctx), l.fields, fields))
}

// GetTimestamp returns the current time in RFC3339.
// LOG_TIMESTAMP overrides it for deterministic test output.
func GetTimestamp() string {
	return timestampFor(time.Now())
}

func timestampFor(t time.Time) string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return t.Format(time.RFC3339)
}
