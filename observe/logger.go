package observe

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level. Unknown values mean info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// structuredLogger writes JSON lines through zerolog.
type structuredLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a new structured logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	zl := zerolog.New(zerolog.SyncWriter(w)).
		Level(ParseLogLevel(level).zerolog()).
		With().Timestamp().Logger()
	return &structuredLogger{zl: zl}
}

// With returns a logger with operation context attached.
func (l *structuredLogger) With(meta OpMeta) Logger {
	c := l.zl.With()
	if meta.Component != "" {
		c = c.Str("op.component", meta.Component)
	}
	if meta.Name != "" {
		c = c.Str("op.name", meta.Name)
	}
	if meta.Rule != "" {
		c = c.Str("rule", meta.Rule)
	}
	if meta.Strategy != "" {
		c = c.Str("strategy", meta.Strategy)
	}
	if meta.CacheName != "" {
		c = c.Str("cache.name", meta.CacheName)
	}
	return &structuredLogger{zl: c.Logger()}
}

func (l *structuredLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Info(), msg, fields)
}

func (l *structuredLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Warn(), msg, fields)
}

func (l *structuredLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Error(), msg, fields)
}

func (l *structuredLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Debug(), msg, fields)
}

func (l *structuredLogger) log(ctx context.Context, ev *zerolog.Event, msg string, fields []Field) {
	// nil when the level is disabled
	if ev == nil {
		return
	}
	ev = ev.Ctx(ctx)
	for _, f := range fields {
		if isRedactedField(f.Key) {
			ev = ev.Str(f.Key, "[REDACTED]")
			continue
		}
		if err, ok := f.Value.(error); ok {
			ev = ev.Str(f.Key, err.Error())
			continue
		}
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

// isRedactedField returns true if the field should be redacted.
func isRedactedField(key string) bool {
	return slices.Contains(RedactedFields, strings.ToLower(key)) || slices.Contains(RedactedFields, key)
}

// Ensure structuredLogger implements Logger
var _ Logger = (*structuredLogger)(nil)
