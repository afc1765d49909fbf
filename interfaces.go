package pgenv

import (
	"context"
	"time"
)

// System manages one PostgreSQL instance and the logical databases on it.
//
// Every method is a request to a single actor goroutine that owns the
// instance, so requests from any number of goroutines are processed one at
// a time, in arrival order per caller. Methods block until their request
// completes; Send is the non-blocking form.
//
// Lifecycle:
//
//	New → Start (optional; CreateDatabase starts on demand) → ... → Close
//
// Operations other than Start, CreateDatabase and Running succeed without
// doing anything while the instance is stopped. Once Close returns, or the
// context given to New is cancelled, every request fails with
// ErrActorClosed.
type System interface {
	// Start starts the instance. Starting a running instance is a no-op.
	// A failed start is retried by the next Start or CreateDatabase.
	Start(ctx context.Context) error

	// Stop stops the instance. The instance counts as stopped afterwards
	// even when an error is returned.
	Stop(ctx context.Context) error

	// CreateDatabase creates a logical database, starting the instance
	// first when needed. An empty name generates a unique one.
	CreateDatabase(ctx context.Context, name string) (Database, error)

	// DropDatabase disconnects all sessions of database name and drops it.
	// Returns ErrDatabaseNotFound if it does not exist.
	DropDatabase(ctx context.Context, name string) error

	// Migrate applies the migration directory source to database and
	// returns how many migrations were applied.
	Migrate(ctx context.Context, database, source string) (int, error)

	// ExecuteSQL runs statement against database, or the maintenance
	// database when database is empty, and returns every row produced.
	ExecuteSQL(ctx context.Context, database, statement string) ([]Row, error)

	// ListDatabases returns the sorted names of all non-system databases.
	ListDatabases(ctx context.Context) ([]string, error)

	// HasDatabase reports whether database name exists.
	HasDatabase(ctx context.Context, name string) (bool, error)

	// Reap drops catalogued databases created more than maxAge ago and
	// returns their names.
	Reap(ctx context.Context, maxAge time.Duration) ([]string, error)

	// Running reports whether the instance is running.
	Running(ctx context.Context) (bool, error)

	// Send enqueues req and returns once it is queued. done is invoked
	// exactly once with the outcome, from the actor goroutine or, when the
	// request cannot be delivered, before Send returns. ctx bounds only
	// the wait for queue space.
	Send(ctx context.Context, req Request, done Completion) error

	// Do sends req and waits for its outcome.
	Do(ctx context.Context, req Request) (any, error)

	// Close stops the instance, releases every resource and ends the
	// actor. Requests queued behind Close fail with ErrActorClosed.
	// Calling Close again returns an error wrapping ErrActorClosed.
	Close(ctx context.Context) error

	// Done is closed once the actor has exited.
	Done() <-chan struct{}
}
