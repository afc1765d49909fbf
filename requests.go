package pgenv

import "github.com/giantswarm/pgenv/internal/core"

// Database is a logical database created on the instance.
type Database = core.LogicalDatabase

// Row is one result row keyed by column name. bytea columns hold []byte;
// other text-encoded types hold string.
type Row = core.Row

// Request is an operation for System.Send and System.Do. The value passed
// to the Completion is documented on each request type.
type Request = core.Request

// Completion receives the outcome of a request exactly once. It must not
// block.
type Completion = core.Completion

// Requests accepted by System.Send and System.Do.
type (
	StartRequest          = core.Start
	StopRequest           = core.Stop
	CreateDatabaseRequest = core.CreateDatabase
	DropDatabaseRequest   = core.DropDatabase
	MigrateRequest        = core.Migrate
	ExecuteSQLRequest     = core.ExecuteSQL
	ListDatabasesRequest  = core.ListDatabases
	HasDatabaseRequest    = core.HasDatabase
	ReapRequest           = core.Reap
	StatusRequest         = core.Status
	CloseRequest          = core.Close
)
