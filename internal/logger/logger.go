// Package logger provides structured logging for the PDF translator.
// It wraps zap and exposes package-level convenience functions so call
// sites stay terse.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init builds the process logger. When debug is true, debug-level messages
// are emitted with the development encoder.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// L returns the current process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries.
func Sync() error {
	return L().Sync()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }
