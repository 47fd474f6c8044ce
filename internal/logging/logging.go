// Package logging provides the structured logger used across the service.
//
// Callers log with a message and an optional set of Fields:
//
//	logger.Info("Order created", logging.Fields{"order_id": id})
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields carries structured context for a log entry.
type Fields map[string]interface{}

// LoggerV2 is a component-scoped structured logger.
type LoggerV2 struct {
	z *zap.Logger
}

var (
	mu   sync.Mutex
	base *zap.Logger
)

// Configure replaces the process-wide base logger. Component loggers created
// before the call keep the previous configuration.
func Configure(level string, development bool) {
	mu.Lock()
	defer mu.Unlock()
	base = build(level, development)
}

func root() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base = build(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV") == "development")
	}
	return base
}

func build(level string, development bool) *zap.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return z
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLoggerV2 creates a logger tagged with the given component name.
func NewLoggerV2(component string) *LoggerV2 {
	return &LoggerV2{z: root().With(zap.String("component", component))}
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *LoggerV2 {
	return &LoggerV2{z: zap.NewNop()}
}

// With returns a child logger that always includes fields.
func (l *LoggerV2) With(fields Fields) *LoggerV2 {
	return &LoggerV2{z: l.z.With(toZap(fields)...)}
}

func (l *LoggerV2) Debug(msg string, fields ...Fields) {
	l.z.Debug(msg, merge(fields)...)
}

func (l *LoggerV2) Info(msg string, fields ...Fields) {
	l.z.Info(msg, merge(fields)...)
}

func (l *LoggerV2) Warn(msg string, fields ...Fields) {
	l.z.Warn(msg, merge(fields)...)
}

func (l *LoggerV2) Error(msg string, fields ...Fields) {
	l.z.Error(msg, merge(fields)...)
}

// Fatal logs and exits the process.
func (l *LoggerV2) Fatal(msg string, fields ...Fields) {
	l.z.Fatal(msg, merge(fields)...)
}

// Sync flushes buffered entries.
func (l *LoggerV2) Sync() error {
	return l.z.Sync()
}

func merge(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields[0]))
	for _, f := range fields {
		out = append(out, toZap(f)...)
	}
	return out
}

func toZap(f Fields) []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
