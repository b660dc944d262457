package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	commonlog "github.com/RyanBlaney/latency-benchmark-common/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a set of structured key/value pairs attached to a log entry
type Fields = commonlog.Fields

// Logger is the structured logger used throughout genre-sonar
type Logger = commonlog.Logger

// Level is the minimum severity a logger emits
type Level = commonlog.Level

const (
	DebugLevel = commonlog.DebugLevel
	InfoLevel  = commonlog.InfoLevel
	WarnLevel  = commonlog.WarnLevel
	ErrorLevel = commonlog.ErrorLevel
	FatalLevel = commonlog.FatalLevel
)

// contextFieldsKey matches the key the common default logger reads
const contextFieldsKey = "logger_fields"

// Config controls how a zap backed logger is built
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
	Output string `mapstructure:"output"` // "stderr", "stdout" or a file path
}

type zapLogger struct {
	base *zap.Logger
}

var defaultLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func init() {
	// stdout carries results, the common default logger writes there
	commonlog.SetGlobalLogger(NewDefaultLogger())
}

// New builds a logger from cfg. The returned logger shares the package level
// so SetLevel affects it.
func New(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	defaultLevel.SetLevel(zapLevel(level))

	encoding := strings.ToLower(cfg.Format)
	if encoding == "" {
		encoding = "console"
	}
	if encoding != "console" && encoding != "json" {
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	output := cfg.Output
	if output == "" {
		output = "stderr"
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	zcfg := zap.Config{
		Level:            defaultLevel,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	base, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &zapLogger{base: base}, nil
}

// NewDefaultLogger returns a console logger writing to stderr at the package level
func NewDefaultLogger() Logger {
	logger, err := New(Config{Level: levelName(defaultLevel.Level()), Format: "console"})
	if err != nil {
		return NewNopLogger()
	}
	return logger
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return &commonlog.NoOpLogger{}
}

// SetDefault installs logger as the process-wide logger shared with the
// common library packages
func SetDefault(logger Logger) {
	commonlog.SetGlobalLogger(logger)
}

// Default returns the process-wide logger
func Default() Logger {
	return commonlog.GetGlobalLogger()
}

// SetLevel changes the minimum level of every logger built by this package
func SetLevel(level Level) {
	defaultLevel.SetLevel(zapLevel(level))
}

// WithFields returns the package logger with fields attached
func WithFields(fields Fields) Logger {
	return Default().WithFields(fields)
}

func Debug(msg string, fields ...Fields) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...Fields)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...Fields)  { Default().Warn(msg, fields...) }

func Error(err error, msg string, fields ...Fields) {
	Default().Error(err, msg, fields...)
}

// ContextWithFields attaches fields that WithContext picks up
func ContextWithFields(ctx context.Context, fields Fields) context.Context {
	return context.WithValue(ctx, contextFieldsKey, fields)
}

// ParseLevel maps a level name to a Level. An empty name means info.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %q", name)
	}
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelName(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "debug"
	case zapcore.WarnLevel:
		return "warn"
	case zapcore.ErrorLevel:
		return "error"
	case zapcore.FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

func (l *zapLogger) Debug(msg string, fields ...Fields) {
	l.base.Debug(msg, toZap(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Fields) {
	l.base.Info(msg, toZap(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Fields) {
	l.base.Warn(msg, toZap(fields)...)
}

func (l *zapLogger) Error(err error, msg string, fields ...Fields) {
	l.base.Error(msg, withError(toZap(fields), err)...)
}

func (l *zapLogger) Fatal(err error, msg string, fields ...Fields) {
	l.base.Fatal(msg, withError(toZap(fields), err)...)
}

func (l *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{base: l.base.With(toZap([]Fields{fields})...)}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := ctx.Value(contextFieldsKey).(Fields); ok {
		return l.WithFields(fields)
	}
	return l
}

// SetLevel changes the shared level, so it applies to every zap logger
func (l *zapLogger) SetLevel(level Level) {
	SetLevel(level)
}

func withError(zf []zap.Field, err error) []zap.Field {
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	return zf
}

// toZap flattens fields into zap fields with sorted keys so output is stable
func toZap(fields []Fields) []zap.Field {
	var n int
	for _, f := range fields {
		n += len(f)
	}
	if n == 0 {
		return nil
	}

	out := make([]zap.Field, 0, n)
	for _, f := range fields {
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, zap.Any(k, f[k]))
		}
	}
	return out
}
