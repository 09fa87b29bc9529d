package tiercache

import (
	"sync"

	"github.com/rs/zerolog"
)

var (
	// loggerMu protects Logger from concurrent access in tests.
	loggerMu sync.RWMutex

	// Logger is the package-level logger for cache operations.
	// Uses a no-op logger by default to avoid logging until explicitly configured.
	// The logger is tagged with component: tiercache for easy filtering.
	Logger = zerolog.Nop()
)

// SetLogger sets the package-level logger for cache operations.
// Call this during application initialization to enable cache logging.
// The logger is automatically tagged with component: tiercache.
//
// Example:
//
//	logger := zerolog.New(os.Stdout).Level(zerolog.DebugLevel)
//	tiercache.SetLogger(&logger)
func SetLogger(l *zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	Logger = l.With().Str("component", "tiercache").Logger()
}

// logger returns the current package logger.
// This is used internally by tier stores and the sweeper.
func logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := Logger
	return &l
}
