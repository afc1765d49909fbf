package core

import "github.com/giantswarm/pgenv/internal/sentinel"

// Error kinds. Failures wrap a kind together with the underlying cause, so
// both match errors.Is and errors.As.
const (
	ErrEngineStart      = sentinel.Error("engine start failed")
	ErrEngineStop       = sentinel.Error("engine stop failed")
	ErrDatabaseCreate   = sentinel.Error("database creation failed")
	ErrDatabaseDrop     = sentinel.Error("database drop failed")
	ErrDatabaseNotFound = sentinel.Error("database does not exist")
	ErrMigration        = sentinel.Error("migration failed")
	ErrExecution        = sentinel.Error("statement execution failed")
	ErrNotRunning       = sentinel.Error("engine not running")

	// ErrActorClosed is returned for requests sent to, or still queued in,
	// an actor that has shut down.
	ErrActorClosed = sentinel.Error("actor closed")

	// ErrNotDelivered marks every failure to hand a request to the actor.
	// It is wrapped together with ErrActorClosed or the context error.
	ErrNotDelivered = sentinel.Error("request not delivered")

	// ErrInvalidDatabaseName is returned for names PostgreSQL cannot store.
	ErrInvalidDatabaseName = sentinel.Error("invalid database name")
)
