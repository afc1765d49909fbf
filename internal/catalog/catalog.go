package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/giantswarm/pgenv/internal/fileutil"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"
)

// FileName is the catalog file created in the data root.
const FileName = "catalog.db"

const schema = `CREATE TABLE IF NOT EXISTS databases (
    server     TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    uri        TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (server, name)
)`

// Entry is one catalogued logical database.
type Entry struct {
	Server    string
	Name      string
	URI       string
	CreatedAt time.Time
}

// Catalog is a handle to the ledger. It is safe for concurrent use.
type Catalog struct {
	db   *sql.DB
	path string
	log  *slog.Logger
	now  func() time.Time
}

// Open opens or creates the catalog at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fileutil.EnsureDirForFile(path); err != nil {
		return nil, err
	}

	dsn, err := dataSourceName(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Catalog{db: db, path: path, log: logger, now: time.Now}, nil
}

// dataSourceName builds a SQLite URI for path with its characters escaped,
// so a root path holding '?', '#' or '%' cannot leak into the query. WAL and
// a busy timeout let several pgenv processes share one root.
func dataSourceName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve catalog path: %w", err)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)",
	}
	return u.String(), nil
}

// Path returns the catalog file path.
func (c *Catalog) Path() string {
	return c.path
}

// Record stores an entry, replacing an earlier one with the same key.
func (c *Catalog) Record(ctx context.Context, server, name, uri string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO databases (server, name, uri, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (server, name) DO UPDATE SET uri = excluded.uri, created_at = excluded.created_at`,
		server, name, uri, c.now().UnixNano())
	if err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	c.log.Debug("catalog: recorded database", "name", name)
	return nil
}

// Forget removes an entry. Forgetting an unknown entry is a no-op.
func (c *Catalog) Forget(ctx context.Context, server, name string) error {
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM databases WHERE server = ? AND name = ?", server, name); err != nil {
		return fmt.Errorf("forget %s: %w", name, err)
	}
	return nil
}

// List returns the entries of server ordered by creation time.
func (c *Catalog) List(ctx context.Context, server string) ([]Entry, error) {
	return c.query(ctx,
		"SELECT server, name, uri, created_at FROM databases WHERE server = ? ORDER BY created_at, name",
		server)
}

// OlderThan returns the entries of server created before cutoff.
func (c *Catalog) OlderThan(ctx context.Context, server string, cutoff time.Time) ([]Entry, error) {
	return c.query(ctx,
		"SELECT server, name, uri, created_at FROM databases WHERE server = ? AND created_at < ? ORDER BY created_at, name",
		server, cutoff.UnixNano())
}

func (c *Catalog) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Server, &e.Name, &e.URI, &created); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
