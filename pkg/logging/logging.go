// Package logging provides the process-wide zap logger used across argus,
// mirroring the teacher's pkg/logging: a package-level atomic level, a
// sugared accessor, and a constructor for loggers with additional sinks
// (used by pkg/rpc to fan log output into an HTTP response stream).
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	mu     sync.RWMutex
	logger = buildLogger()
)

func buildLogger() *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// SetLevel adjusts the global logging level at runtime.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// L returns the process-wide structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// S returns the process-wide sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// NewLogger builds a logger that writes to the default stderr sink as well
// as any extra WriteSyncers supplied, at the current global level. This is
// used by pkg/rpc.NewOutputWriter to tee log output into an HTTP response.
func NewLogger(extra ...zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	syncers := append([]zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}, extra...)
	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	return zap.New(core)
}
