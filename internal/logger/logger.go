// Package logger provides the structured logging interface used across the gateway.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLevel converts a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn:
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Field is a single structured key/value attached to a log record.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field { return Field{Key: key, Value: value} }
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d.String()} }

// Error attaches an error under the "error" key. A nil error logs as empty.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the logging interface components depend on.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Module(name string) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger writing JSON records to w. A nil location
// keeps timestamps in local time.
func NewSlogLogger(w io.Writer, level LogLevel, loc *time.Location) Logger {
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && loc != nil {
				a.Value = slog.TimeValue(a.Value.Time().In(loc))
			}
			return a
		},
	}
	return &slogLogger{l: slog.New(slog.NewJSONHandler(w, opts))}
}

func toAttrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func (s *slogLogger) log(level slog.Level, msg string, fields []Field) {
	if !s.l.Enabled(context.Background(), level) {
		return
	}
	s.l.Log(context.Background(), level, msg, toAttrs(fields)...)
}

func (s *slogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s *slogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s *slogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s *slogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{l: s.l.With(toAttrs(fields)...)}
}

// Module tags every record from the returned logger with the component name.
func (s *slogLogger) Module(name string) Logger {
	return s.With(String("module", name))
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, nil)
}
