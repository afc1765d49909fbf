//go:build integration

package pgenv_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/pgenv"
)

// newSystem starts a System backed by the embedded engine, or by the
// binaries in PGENV_TEST_BINARIES when set.
func newSystem(t *testing.T) pgenv.System {
	t.Helper()

	opts := []pgenv.Option{
		pgenv.WithRootPath(t.TempDir()),
		pgenv.WithStartTimeout(5 * time.Minute),
	}
	if dir := os.Getenv("PGENV_TEST_BINARIES"); dir != "" {
		opts = append(opts, pgenv.WithBinariesPath(dir))
	}
	sys, err := pgenv.New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := sys.Close(context.Background()); err != nil {
			t.Logf("close: %v", err)
		}
	})
	return sys
}

func TestIntegration_DatabaseLifecycle(t *testing.T) {
	sys := newSystem(t)
	ctx := t.Context()

	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	db, err := sys.CreateDatabase(ctx, "")
	if err != nil {
		t.Fatalf("CreateDatabase() error: %v", err)
	}
	if !strings.Contains(db.URI, db.Name) {
		t.Fatalf("URI %q does not contain %q", db.URI, db.Name)
	}

	if _, err := sys.ExecuteSQL(ctx, db.Name, "CREATE TABLE items (id serial PRIMARY KEY, name text)"); err != nil {
		t.Fatalf("ExecuteSQL() error: %v", err)
	}
	rows, err := sys.ExecuteSQL(ctx, db.Name, "INSERT INTO items (name) VALUES ('a'), ('b') RETURNING id, name")
	if err != nil || len(rows) != 2 || rows[1]["name"] != "b" {
		t.Fatalf("ExecuteSQL(insert) = %v, %v", rows, err)
	}

	// The URI works for ordinary clients too.
	conn, err := sql.Open("postgres", db.URI)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	var count int
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&count); err != nil || count != 2 {
		t.Fatalf("count = %d, %v", count, err)
	}

	migrations := t.TempDir()
	if n, err := sys.Migrate(ctx, db.Name, migrations); n != 0 || err != nil {
		t.Fatalf("Migrate(empty) = %d, %v", n, err)
	}
	if err := os.WriteFile(filepath.Join(migrations, "1_add_price.sql"),
		[]byte("ALTER TABLE items ADD COLUMN price numeric;"), 0o600); err != nil {
		t.Fatal(err)
	}
	if n, err := sys.Migrate(ctx, db.Name, migrations); n != 1 || err != nil {
		t.Fatalf("Migrate() = %d, %v", n, err)
	}

	// An open session does not prevent the drop.
	if err := sys.DropDatabase(ctx, db.Name); err != nil {
		t.Fatalf("DropDatabase() error: %v", err)
	}
	_ = conn.Close()
	if ok, err := sys.HasDatabase(ctx, db.Name); ok || err != nil {
		t.Fatalf("HasDatabase() = %v, %v", ok, err)
	}
}

func TestIntegration_DropNeverCreated(t *testing.T) {
	sys := newSystem(t)
	ctx := t.Context()

	if err := sys.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := sys.DropDatabase(ctx, "never_created"); !errors.Is(err, pgenv.ErrDatabaseNotFound) {
		t.Fatalf("DropDatabase() error = %v, want ErrDatabaseNotFound", err)
	}
}

func TestIntegration_ConcurrentCreates(t *testing.T) {
	sys := newSystem(t)

	names := make([]string, 4)
	g, ctx := errgroup.WithContext(t.Context())
	for i := range names {
		g.Go(func() error {
			db, err := sys.CreateDatabase(ctx, "")
			names[i] = db.Name
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("CreateDatabase() error: %v", err)
	}

	listed, err := sys.ListDatabases(t.Context())
	if err != nil {
		t.Fatalf("ListDatabases() error: %v", err)
	}
	for _, name := range names {
		if !slices.Contains(listed, name) {
			t.Errorf("%s missing from %v", name, listed)
		}
	}
}

func TestIntegration_StopBehindCreate(t *testing.T) {
	sys := newSystem(t)
	ctx := t.Context()

	created := make(chan error, 1)
	if err := sys.Send(ctx, pgenv.CreateDatabaseRequest{}, func(_ any, err error) { created <- err }); err != nil {
		t.Fatalf("Send(create) error: %v", err)
	}
	stopped := make(chan error, 1)
	if err := sys.Send(ctx, pgenv.StopRequest{}, func(_ any, err error) { stopped <- err }); err != nil {
		t.Fatalf("Send(stop) error: %v", err)
	}

	if err := <-created; err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if running, err := sys.Running(ctx); running || err != nil {
		t.Fatalf("Running() = %v, %v; want false", running, err)
	}
}

func TestIntegration_Reap(t *testing.T) {
	sys := newSystem(t)
	ctx := t.Context()

	db, err := sys.CreateDatabase(ctx, "")
	if err != nil {
		t.Fatalf("CreateDatabase() error: %v", err)
	}
	if dropped, err := sys.Reap(ctx, time.Hour); err != nil || len(dropped) != 0 {
		t.Fatalf("Reap(1h) = %v, %v", dropped, err)
	}
	dropped, err := sys.Reap(ctx, time.Nanosecond)
	if err != nil || !slices.Equal(dropped, []string{db.Name}) {
		t.Fatalf("Reap(1ns) = %v, %v", dropped, err)
	}
}
