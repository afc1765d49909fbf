package pgenv

import (
	"log/slog"

	"github.com/giantswarm/pgenv/internal/core"
)

// SetLogger replaces the logger used by pgenv and by every System created
// afterwards. The logger is used as given; pgenv adds only scoping
// attributes such as "target" and "port".
//
// A nil l restores the default, slog.Default() with a "component" attribute,
// re-derived on next use. Call SetLogger(nil) after slog.SetDefault to pick
// up the new default.
//
// SetLogger is safe for concurrent use. Systems already created keep the
// logger they were built with.
//
// Example:
//
//	pgenv.SetLogger(myLogger.With("component", "pgenv"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
