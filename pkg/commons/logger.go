// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging contract shared by every package in the service.
// It mirrors zap's SugaredLogger so call sites can mix printf-style and
// structured key/value logging.
type Logger interface {
	Level() zapcore.Level

	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	DPanic(args ...interface{})
	DPanicf(template string, args ...interface{})
	Panic(args ...interface{})
	Panicf(template string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})

	// Benchmark logs how long a named function took.
	Benchmark(functionName string, duration time.Duration)
	Tracef(ctx context.Context, format string, args ...interface{})
	Sync() error
}

type loggerOptions struct {
	name       string
	path       string
	level      string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	console    bool
}

// LoggerOption configures NewApplicationLogger.
type LoggerOption func(*loggerOptions)

// Name sets the service name, used as the log file name and as a field on every entry.
func Name(name string) LoggerOption {
	return func(o *loggerOptions) { o.name = name }
}

// Path sets the directory for the rotating log file.
func Path(path string) LoggerOption {
	return func(o *loggerOptions) { o.path = path }
}

// Level sets the minimum level (debug, info, warn, error).
func Level(level string) LoggerOption {
	return func(o *loggerOptions) { o.level = level }
}

// Console toggles mirroring log entries to stdout.
func Console(enabled bool) LoggerOption {
	return func(o *loggerOptions) { o.console = enabled }
}

type applicationLogger struct {
	*zap.SugaredLogger
	level zapcore.Level
}

// NewApplicationLogger builds a zap logger that writes JSON to a lumberjack
// rotated file and, by default, human readable lines to stdout.
func NewApplicationLogger(opts ...LoggerOption) (Logger, error) {
	o := loggerOptions{
		name:       "pitch-rehearsal",
		path:       "/tmp/logs",
		level:      "info",
		maxSizeMB:  50,
		maxBackups: 5,
		maxAgeDays: 14,
		console:    true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := zapcore.ParseLevel(o.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
	}
	if err := os.MkdirAll(o.path, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory %s: %w", o.path, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = "time"

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.path, o.name+".log"),
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     o.maxAgeDays,
		Compress:   true,
	})
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), fileWriter, level),
	}
	if o.console {
		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", o.name))
	return &applicationLogger{SugaredLogger: base.Sugar(), level: level}, nil
}

func (l *applicationLogger) Level() zapcore.Level {
	return l.level
}

func (l *applicationLogger) Benchmark(functionName string, duration time.Duration) {
	l.SugaredLogger.Debugw("benchmark", "function", functionName, "duration_ms", duration.Milliseconds())
}

func (l *applicationLogger) Tracef(ctx context.Context, format string, args ...interface{}) {
	if ctx != nil && ctx.Err() != nil {
		args = append(args, ctx.Err())
		format += " (context: %v)"
	}
	l.SugaredLogger.Debugf(format, args...)
}
