package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the output encoding.
type Format string

// Output formats
const (
	TextFormat Format = "text"
	JSONFormat Format = "json"
)

// Logger is the structured logging interface passed through the codebase.
// Loggers are constructed once and injected; there is no package-level
// default.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger carrying the extra fields.
	With(fields ...Field) Logger

	// WithComponent tags logs with a component name.
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Option configures a logger at construction time.
type Option func(*baseLogger)

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option {
	return func(l *baseLogger) { l.level.Store(int32(level)) }
}

// WithFormat selects text or JSON output.
func WithFormat(f Format) Option {
	return func(l *baseLogger) { l.format = f }
}

// WithWriter redirects output (default os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(l *baseLogger) { l.w = w }
}

type baseLogger struct {
	level  *atomic.Int32
	format Format
	w      io.Writer
	sl     *slog.Logger
}

// NewLogger creates a logger with the given options.
func NewLogger(options ...Option) Logger {
	l := &baseLogger{level: &atomic.Int32{}, format: TextFormat, w: os.Stderr}
	l.level.Store(int32(InfoLevel))
	for _, opt := range options {
		opt(l)
	}

	lv := &dynamicLevel{level: l.level}
	hopts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if l.format == JSONFormat {
		h = slog.NewJSONHandler(l.w, hopts)
	} else {
		h = slog.NewTextHandler(l.w, hopts)
	}
	l.sl = slog.New(h)
	return l
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() Logger { return NewLogger(WithWriter(io.Discard), WithLevel(ErrorLevel)) }

// dynamicLevel lets SetLevel take effect after construction.
type dynamicLevel struct{ level *atomic.Int32 }

func (d *dynamicLevel) Level() slog.Level { return toSlogLevel(Level(d.level.Load())) }

func toSlogLevel(l Level) slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *baseLogger) log(lv slog.Level, msg string, fields []Field) {
	attrs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		attrs = append(attrs, f.Key, f.Value)
	}
	l.sl.Log(nil, lv, msg, attrs...)
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *baseLogger) With(fields ...Field) Logger {
	attrs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		attrs = append(attrs, f.Key, f.Value)
	}
	child := *l
	child.sl = l.sl.With(attrs...)
	return &child
}

func (l *baseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *baseLogger) SetLevel(level Level) { l.level.Store(int32(level)) }
func (l *baseLogger) GetLevel() Level      { return Level(l.level.Load()) }
