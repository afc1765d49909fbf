package core

import (
	"log/slog"
	"sync/atomic"
)

// logger is the package-level logger. A nil value means SetLogger has not
// been called and Logger falls back to a cached default.
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches slog.Default() with the pgenv component attribute.
// Calling SetLogger(nil) clears it so a later slog.SetDefault is picked up.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the current package-level logger. It is safe to call from
// multiple goroutines.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefaultLogger()
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

func newDefaultLogger() *slog.Logger {
	return slog.Default().With("component", "pgenv")
}

// SetLogger replaces the package-level logger. A nil l resets to the
// default, re-derived from slog.Default() on the next Logger call.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
