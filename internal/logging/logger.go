package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different log levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel converts a configured level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "warning":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "console"
	Output    io.Writer
	Component string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:  LevelInfo,
		Format: "console",
		Output: os.Stderr,
	}
}

type requestIDKey struct{}

// ContextWithRequestID returns a context whose log lines carry id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)

	return id
}

// ReportLogger implements Logger on top of zap.
type ReportLogger struct {
	logger *zap.Logger
}

// NewLogger creates a new structured logger
func NewLogger(config *LoggerConfig) *ReportLogger {
	if config == nil {
		config = DefaultConfig()
	}

	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), zap.NewAtomicLevelAt(config.Level.zapLevel()))

	l := NewFromZap(zap.New(core))
	if config.Component != "" {
		return l.WithComponent(config.Component).(*ReportLogger)
	}

	return l
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(z *zap.Logger) *ReportLogger {
	return &ReportLogger{logger: z}
}

// NewNop returns a logger that discards everything.
func NewNop() *ReportLogger {
	return NewFromZap(zap.NewNop())
}

// Debug logs a debug message
func (l *ReportLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, zapcore.DebugLevel, nil, msg, fields)
}

// Info logs an info message
func (l *ReportLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, zapcore.InfoLevel, nil, msg, fields)
}

// Warn logs a warning message
func (l *ReportLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, zapcore.WarnLevel, err, msg, fields)
}

// Error logs an error message
func (l *ReportLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, zapcore.ErrorLevel, err, msg, fields)
}

// With creates a new logger with additional fields
func (l *ReportLogger) With(fields ...interface{}) Logger {
	return &ReportLogger{logger: l.logger.With(toZapFields(fields)...)}
}

// WithComponent creates a new logger with component context
func (l *ReportLogger) WithComponent(component string) Logger {
	return &ReportLogger{logger: l.logger.With(zap.String("component", component))}
}

// Sync flushes buffered entries.
func (l *ReportLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ReportLogger) log(ctx context.Context, level zapcore.Level, err error, msg string, fields []interface{}) {
	ce := l.logger.Check(level, msg)
	if ce == nil {
		return
	}

	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		zf = append(zf, zap.String("request_id", id))
	}

	ce.Write(zf...)
}

// toZapFields converts alternating key/value pairs. Non-string keys and a
// trailing key without value are skipped.
func toZapFields(fields []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, fields[i+1]))
	}

	return out
}
