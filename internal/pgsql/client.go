package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/giantswarm/pgenv/internal/sentinel"
	"github.com/lib/pq"
)

const (
	// ErrDuplicateDatabase is returned by CreateDatabase when the name is taken.
	ErrDuplicateDatabase = sentinel.Error("database already exists")

	// ErrNoSuchDatabase is returned by DropDatabase when the engine reports
	// that the database does not exist.
	ErrNoSuchDatabase = sentinel.Error("no such database")
)

// PostgreSQL error codes inspected by the client.
const (
	codeDuplicateDatabase  = pq.ErrorCode("42P04")
	codeInvalidCatalogName = pq.ErrorCode("3D000")
)

// maxOpenConns caps each cached pool. The core runs one operation at a
// time; a handful of connections covers migrations holding an advisory lock
// on one connection while statements run on another.
const maxOpenConns = 4

// systemDatabases are created by initdb and never reported as logical
// databases.
var systemDatabases = []string{"template0", "template1", "postgres"}

// IsSystemDatabase reports whether name is an engine-internal database.
func IsSystemDatabase(name string) bool {
	return slices.Contains(systemDatabases, name)
}

// Row is one result row keyed by column name.
type Row map[string]any

// Client runs statements against PostgreSQL servers. It is safe for
// concurrent use.
type Client struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
	log   *slog.Logger
}

// NewClient creates a client. A nil logger uses slog.Default().
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pools: make(map[string]*sql.DB),
		log:   logger,
	}
}

// Ping opens a one-off connection to uri and pings it. It does not touch
// the pool cache, so readiness probes against a starting server leave no
// broken pools behind.
func Ping(ctx context.Context, uri string) error {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Open returns the cached pool for uri, connecting on first use.
func (c *Client) Open(ctx context.Context, uri string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.pools[uri]; ok {
		return db, nil
	}
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s: %w", Redact(uri), err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	c.pools[uri] = db
	return db, nil
}

// Forget closes and evicts the pool for uri, if any.
func (c *Client) Forget(uri string) {
	c.mu.Lock()
	db, ok := c.pools[uri]
	delete(c.pools, uri)
	c.mu.Unlock()

	if ok {
		if err := db.Close(); err != nil {
			c.log.Debug("close pool", "uri", Redact(uri), "error", err)
		}
	}
}

// Close closes every cached pool.
func (c *Client) Close() error {
	c.mu.Lock()
	pools := c.pools
	c.pools = make(map[string]*sql.DB)
	c.mu.Unlock()

	var errs []error
	for uri, db := range pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool %s: %w", Redact(uri), err))
		}
	}
	return errors.Join(errs...)
}

// FetchAll runs statement and returns the rows of every result set it
// produces. Statements without parameters go through the simple query
// protocol, so a statement may contain several commands.
func (c *Client) FetchAll(ctx context.Context, uri, statement string) ([]Row, error) {
	db, err := c.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for {
		batch, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if len(types) == 0 {
		return nil, nil
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(types))
		for i, ct := range types {
			row[ct.Name()] = convertValue(values[i], ct.DatabaseTypeName())
		}
		out = append(out, row)
	}
	return out, nil
}

// convertValue turns driver byte slices into strings for every type but
// bytea. lib/pq returns numeric, json and similar types as raw text.
func convertValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if strings.EqualFold(dbType, "BYTEA") {
		return slices.Clone(b)
	}
	return string(b)
}

// DatabaseExists reports whether database name exists on the server.
func (c *Client) DatabaseExists(ctx context.Context, serverURI, name string) (bool, error) {
	db, err := c.Open(ctx, serverURI)
	if err != nil {
		return false, err
	}
	var exists bool
	err = db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	return exists, nil
}

// CreateDatabase creates database name owned by the connecting role.
func (c *Client) CreateDatabase(ctx context.Context, serverURI, name string) error {
	db, err := c.Open(ctx, serverURI)
	if err != nil {
		return err
	}
	// CREATE DATABASE takes no bind parameters.
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		if hasCode(err, codeDuplicateDatabase) {
			return fmt.Errorf("%w: %w", ErrDuplicateDatabase, err)
		}
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// TerminateBackends disconnects every session connected to database name
// except the caller's own and returns how many were terminated.
func (c *Client) TerminateBackends(ctx context.Context, serverURI, name string) (int, error) {
	db, err := c.Open(ctx, serverURI)
	if err != nil {
		return 0, err
	}
	rows, err := db.QueryContext(ctx, `SELECT pg_terminate_backend(pid)
FROM pg_stat_activity
WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
	if err != nil {
		return 0, fmt.Errorf("terminate backends of %s: %w", name, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var ok bool
		if err := rows.Scan(&ok); err != nil {
			return n, fmt.Errorf("terminate backends of %s: %w", name, err)
		}
		if ok {
			n++
		}
	}
	return n, rows.Err()
}

// DropDatabase severs all connections to database name and drops it. The
// cached pool for the database itself is evicted first.
func (c *Client) DropDatabase(ctx context.Context, serverURI, name string) error {
	if dbURI, err := WithDatabase(serverURI, name); err == nil {
		c.Forget(dbURI)
	}

	n, err := c.TerminateBackends(ctx, serverURI, name)
	if err != nil {
		return err
	}
	if n > 0 {
		c.log.Debug("terminated backends before drop", "database", name, "count", n)
	}

	db, err := c.Open(ctx, serverURI)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DROP DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		if hasCode(err, codeInvalidCatalogName) {
			return fmt.Errorf("%w: %w", ErrNoSuchDatabase, err)
		}
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

// ListDatabases returns the sorted names of all non-system databases.
func (c *Client) ListDatabases(ctx context.Context, serverURI string) ([]string, error) {
	db, err := c.Open(ctx, serverURI)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT datname FROM pg_database WHERE NOT (datname = ANY($1)) ORDER BY datname",
		pq.Array(systemDatabases))
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list databases: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return names, nil
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
