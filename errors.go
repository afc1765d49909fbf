package pgenv

import "github.com/giantswarm/pgenv/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
// Operation failures wrap one of them together with the underlying cause.
const (
	// ErrEngineStart is returned when the local engine fails to set up or
	// start, including a start that exceeds the start timeout.
	ErrEngineStart = core.ErrEngineStart

	// ErrEngineStop is returned when the local engine fails to stop.
	ErrEngineStop = core.ErrEngineStop

	// ErrDatabaseCreate is returned by CreateDatabase, for example for an
	// existing or invalid name.
	ErrDatabaseCreate = core.ErrDatabaseCreate

	// ErrDatabaseDrop is returned by DropDatabase when the engine refuses
	// the drop, including attempts to drop a system database.
	ErrDatabaseDrop = core.ErrDatabaseDrop

	// ErrDatabaseNotFound is returned by DropDatabase for a database that
	// does not exist.
	ErrDatabaseNotFound = core.ErrDatabaseNotFound

	// ErrMigration is returned by Migrate.
	ErrMigration = core.ErrMigration

	// ErrExecution is returned by ExecuteSQL, ListDatabases and HasDatabase.
	ErrExecution = core.ErrExecution

	// ErrActorClosed is returned for requests sent after Close, or still
	// queued when the actor exited.
	ErrActorClosed = core.ErrActorClosed

	// ErrNotDelivered marks a request that never reached the actor. It is
	// wrapped together with ErrActorClosed or the context error.
	ErrNotDelivered = core.ErrNotDelivered

	// ErrInvalidDatabaseName is returned for names PostgreSQL cannot store.
	ErrInvalidDatabaseName = core.ErrInvalidDatabaseName
)
