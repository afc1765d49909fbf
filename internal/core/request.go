package core

import (
	"context"
	"time"
)

// Op names a request kind. It is used as the metrics label.
type Op string

const (
	OpStart          Op = "start"
	OpStop           Op = "stop"
	OpCreateDatabase Op = "create_database"
	OpDropDatabase   Op = "drop_database"
	OpMigrate        Op = "migrate"
	OpExecuteSQL     Op = "execute_sql"
	OpListDatabases  Op = "list_databases"
	OpHasDatabase    Op = "has_database"
	OpReap           Op = "reap"
	OpStatus         Op = "status"
	OpClose          Op = "close"
)

// Request is an operation the Actor runs against its Manager. The result
// value delivered to the Completion is documented on each request type.
type Request interface {
	Op() Op
	apply(ctx context.Context, m *Manager) (any, error)
}

// Start starts the instance. Result: nil.
type Start struct{}

// Stop stops the instance. Result: nil.
type Stop struct{}

// CreateDatabase creates a database, starting the instance when needed.
// An empty Name generates one. Result: LogicalDatabase.
type CreateDatabase struct{ Name string }

// DropDatabase drops a database. Result: nil.
type DropDatabase struct{ Name string }

// Migrate applies the migration directory Source to Database.
// Result: int, the number of migrations applied.
type Migrate struct{ Database, Source string }

// ExecuteSQL runs Statement against Database, or the maintenance database
// when Database is empty. Result: []Row.
type ExecuteSQL struct{ Database, Statement string }

// ListDatabases lists the logical databases. Result: []string.
type ListDatabases struct{}

// HasDatabase checks whether a database exists. Result: bool.
type HasDatabase struct{ Name string }

// Reap drops catalogued databases older than MaxAge. Result: []string.
type Reap struct{ MaxAge time.Duration }

// Status reports whether the instance is running. Result: bool.
type Status struct{}

// Close stops the instance and ends the actor. Result: nil.
type Close struct{}

func (Start) Op() Op          { return OpStart }
func (Stop) Op() Op           { return OpStop }
func (CreateDatabase) Op() Op { return OpCreateDatabase }
func (DropDatabase) Op() Op   { return OpDropDatabase }
func (Migrate) Op() Op        { return OpMigrate }
func (ExecuteSQL) Op() Op     { return OpExecuteSQL }
func (ListDatabases) Op() Op  { return OpListDatabases }
func (HasDatabase) Op() Op    { return OpHasDatabase }
func (Reap) Op() Op           { return OpReap }
func (Status) Op() Op         { return OpStatus }
func (Close) Op() Op          { return OpClose }

func (Start) apply(ctx context.Context, m *Manager) (any, error) {
	return nil, m.Start(ctx)
}

func (Stop) apply(ctx context.Context, m *Manager) (any, error) {
	return nil, m.Stop(ctx)
}

func (r CreateDatabase) apply(ctx context.Context, m *Manager) (any, error) {
	db, err := m.CreateDatabase(ctx, r.Name)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (r DropDatabase) apply(ctx context.Context, m *Manager) (any, error) {
	return nil, m.DropDatabase(ctx, r.Name)
}

func (r Migrate) apply(ctx context.Context, m *Manager) (any, error) {
	return m.Migrate(ctx, r.Database, r.Source)
}

func (r ExecuteSQL) apply(ctx context.Context, m *Manager) (any, error) {
	rows, err := m.ExecuteSQL(ctx, r.Database, r.Statement)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (ListDatabases) apply(ctx context.Context, m *Manager) (any, error) {
	names, err := m.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r HasDatabase) apply(ctx context.Context, m *Manager) (any, error) {
	return m.HasDatabase(ctx, r.Name)
}

func (r Reap) apply(ctx context.Context, m *Manager) (any, error) {
	return m.Reap(ctx, r.MaxAge)
}

func (Status) apply(_ context.Context, m *Manager) (any, error) {
	return m.Running(), nil
}

func (Close) apply(ctx context.Context, m *Manager) (any, error) {
	return nil, m.Close(ctx)
}
