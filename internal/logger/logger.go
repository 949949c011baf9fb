// Package logger holds the process-wide structured logger.  It defaults to
// a JSON encoder at info level and can be reconfigured once at startup.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the shared sugared logger.  It is never nil.
var Log *zap.SugaredLogger

func init() {
	Log = build("info")
}

// Setup rebuilds Log for the given level (debug, info, warn, error).
func Setup(level string) {
	Log = build(level)
}

func build(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl = zapcore.InfoLevel
	}
	config := zap.Config{
		Encoding:         "json",
		Level:            zap.NewAtomicLevelAt(lvl),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}
	zl, err := config.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return zl.Sugar()
}

// Sync flushes buffered entries; call before exit.
func Sync() { _ = Log.Sync() }

func Infof(template string, args ...interface{})  { Log.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Log.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Log.Errorf(template, args...) }
func Debugf(template string, args ...interface{}) { Log.Debugf(template, args...) }
