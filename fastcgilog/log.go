// Package fastcgilog provides the single structured-logging sink used by
// every other package in the module. It mirrors the once-initialized,
// flag-gated logger pattern the rest of the core uses for other shared
// singletons (the manager), but backs it with zap instead of
// a bare log.Logger so the pack's ambient logging stack is exercised
// instead of hand-rolled formatting.
package fastcgilog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.SugaredLogger
	debug  bool
)

// SetDebug toggles debug-level logging before the first call to L. It has
// no effect afterward; call it during process start-up, before Manager
// construction.
func SetDebug(enabled bool) {
	debug = enabled
}

func build() {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"

	base, err := cfg.Build()
	if err != nil {
		// Logging must never be the reason the runtime fails to start.
		base = zap.NewNop()
	}

	logger = base.Sugar().Named("fastcgi")
}

// L returns the package-wide logger, building it on first use.
func L() *zap.SugaredLogger {
	once.Do(build)
	return logger
}

// Sync flushes any buffered log entries. Call it during graceful shutdown.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
