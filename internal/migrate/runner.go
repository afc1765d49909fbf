package migrate

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"log/slog"
	"time"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

const (
	// ErrChecksumMismatch is returned when an applied migration was edited.
	ErrChecksumMismatch = sentinel.Error("applied migration was modified")

	// ErrDirty is returned when a previous migration failed part way.
	ErrDirty = sentinel.Error("database has a failed migration")

	// ErrVersionMissing is returned when an applied migration is no longer
	// present in the source.
	ErrVersionMissing = sentinel.Error("applied migration missing from source")
)

const createHistoryTable = `CREATE TABLE IF NOT EXISTS _sqlx_migrations (
    version BIGINT PRIMARY KEY,
    description TEXT NOT NULL,
    installed_on TIMESTAMPTZ NOT NULL DEFAULT now(),
    success BOOLEAN NOT NULL,
    checksum BYTEA NOT NULL,
    execution_time BIGINT NOT NULL
)`

const insertHistory = `INSERT INTO _sqlx_migrations (version, description, success, checksum, execution_time)
VALUES ($1, $2, $3, $4, $5)`

// lockKey derives the advisory lock id from the database name, matching the
// sqlx migrator so that both never migrate one database concurrently.
func lockKey(database string) int64 {
	return 0x3d32ad9e * int64(crc32.ChecksumIEEE([]byte(database)))
}

// Runner applies migrations.
type Runner struct {
	log *slog.Logger
}

// NewRunner creates a Runner. A nil logger uses slog.Default().
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{log: logger}
}

// Apply brings database up to date with migrations and returns how many were
// applied. All work happens on one connection holding a session advisory
// lock. A failing migration is rolled back, except no-transaction ones,
// which are recorded as failed and leave the database dirty.
func (r *Runner) Apply(ctx context.Context, db *sql.DB, database string, migrations []Migration) (int, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	key := lockKey(database)
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", key); err != nil {
			r.log.Warn("release migration lock", "database", database, "error", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, createHistoryTable); err != nil {
		return 0, fmt.Errorf("create migration history: %w", err)
	}

	applied, err := r.applied(ctx, conn)
	if err != nil {
		return 0, err
	}

	byVersion := make(map[int64]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}
	for version, h := range applied {
		if !h.success {
			return 0, fmt.Errorf("%w: version %d", ErrDirty, version)
		}
		m, ok := byVersion[version]
		if !ok {
			return 0, fmt.Errorf("%w: version %d", ErrVersionMissing, version)
		}
		if !bytes.Equal(m.Checksum, h.checksum) {
			return 0, fmt.Errorf("%w: version %d (%s)", ErrChecksumMismatch, version, m.Description)
		}
	}

	n := 0
	for _, m := range migrations {
		if _, done := applied[m.Version]; done {
			continue
		}
		start := time.Now()
		if err := r.apply(ctx, conn, m); err != nil {
			return n, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		r.log.Info("applied migration", "database", database, "version", m.Version,
			"description", m.Description, "elapsed", time.Since(start))
		n++
	}
	return n, nil
}

type history struct {
	success  bool
	checksum []byte
}

func (r *Runner) applied(ctx context.Context, conn *sql.Conn) (map[int64]history, error) {
	rows, err := conn.QueryContext(ctx, "SELECT version, success, checksum FROM _sqlx_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]history)
	for rows.Next() {
		var (
			version int64
			h       history
		)
		if err := rows.Scan(&version, &h.success, &h.checksum); err != nil {
			return nil, fmt.Errorf("read migration history: %w", err)
		}
		out[version] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read migration history: %w", err)
	}
	return out, nil
}

func (r *Runner) apply(ctx context.Context, conn *sql.Conn, m Migration) error {
	start := time.Now()

	if m.NoTx {
		if _, err := conn.ExecContext(ctx, m.SQL); err != nil {
			if _, recErr := conn.ExecContext(context.WithoutCancel(ctx), insertHistory,
				m.Version, m.Description, false, m.Checksum, time.Since(start).Nanoseconds()); recErr != nil {
				r.log.Warn("record failed migration", "version", m.Version, "error", recErr)
			}
			return err
		}
		_, err := conn.ExecContext(ctx, insertHistory,
			m.Version, m.Description, true, m.Checksum, time.Since(start).Nanoseconds())
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, insertHistory,
		m.Version, m.Description, true, m.Checksum, time.Since(start).Nanoseconds()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
