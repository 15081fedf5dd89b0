package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type Logger interface {
	Name() string

	Tracef(format string, values ...interface{})
	Debugf(format string, values ...interface{})
	Infof(format string, values ...interface{})
	Warnf(format string, values ...interface{})
	Errorf(format string, values ...interface{})
	Criticalf(format string, values ...interface{})
	Panicf(format string, values ...interface{})
	Fatalf(format string, values ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Criticalw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})

	With(keysAndValues ...interface{}) Logger
	Named(name string) Logger

	Sync() error
}

// Config selects the zap preset used by New.
type Config struct {
	Debug       bool
	JSONConsole bool
}

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	*zap.SugaredLogger
	name string
}

// New returns a zap backed Logger. Production settings are used unless Debug is set.
func New(cfg Config) (Logger, error) {
	var zcfg zap.Config
	if cfg.Debug {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	zcfg.Encoding = "console"
	if cfg.JSONConsole {
		zcfg.Encoding = "json"
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{SugaredLogger: l.Sugar()}, nil
}

// Test returns a logger that writes through tb.Log at debug level.
func Test(tb testing.TB) Logger {
	return &zapLogger{SugaredLogger: zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Sugar()}
}

// Nop discards everything.
func Nop() Logger {
	return &zapLogger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named is a nil safe helper for l.Named(name).
func Named(l Logger, name string) Logger {
	if l == nil {
		return Nop().Named(name)
	}
	return l.Named(name)
}

func (l *zapLogger) Name() string { return l.name }

func (l *zapLogger) Tracef(format string, values ...interface{}) {
	l.SugaredLogger.Debugf(format, values...)
}

func (l *zapLogger) Criticalf(format string, values ...interface{}) {
	l.SugaredLogger.With("critical", true).Errorf(format, values...)
}

func (l *zapLogger) Criticalw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.With("critical", true).Errorw(msg, keysAndValues...)
}

func (l *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{SugaredLogger: l.SugaredLogger.With(keysAndValues...), name: l.name}
}

func (l *zapLogger) Named(name string) Logger {
	fullName := name
	if l.name != "" {
		fullName = l.name + "." + name
	}
	return &zapLogger{SugaredLogger: l.SugaredLogger.Named(name), name: fullName}
}
