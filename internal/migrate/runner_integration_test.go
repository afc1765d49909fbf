//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/lib/pq"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	uri := os.Getenv("PGENV_TEST_URI")
	if uri == "" {
		t.Skip("PGENV_TEST_URI not set")
	}
	db, err := sql.Open("postgres", uri)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec("DROP TABLE IF EXISTS _sqlx_migrations, migrate_users"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return db
}

func TestRunner_Apply(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	r := NewRunner(nil)

	source := fstest.MapFS{
		"1_users.sql": {Data: []byte("CREATE TABLE migrate_users (id int);")},
		"2_seed.sql":  {Data: []byte("INSERT INTO migrate_users VALUES (1); INSERT INTO migrate_users VALUES (2);")},
	}
	migrations, err := Load(source)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	n, err := r.Apply(ctx, db, "postgres", migrations)
	if err != nil || n != 2 {
		t.Fatalf("Apply = %d, %v; want 2, nil", n, err)
	}
	n, err = r.Apply(ctx, db, "postgres", migrations)
	if err != nil || n != 0 {
		t.Fatalf("second Apply = %d, %v; want 0, nil", n, err)
	}

	edited := fstest.MapFS{
		"1_users.sql": {Data: []byte("CREATE TABLE migrate_users (id bigint);")},
		"2_seed.sql":  source["2_seed.sql"],
	}
	migrations, _ = Load(edited)
	if _, err := r.Apply(ctx, db, "postgres", migrations); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Apply edited = %v, want ErrChecksumMismatch", err)
	}

	migrations, _ = Load(fstest.MapFS{"1_users.sql": source["1_users.sql"]})
	if _, err := r.Apply(ctx, db, "postgres", migrations); !errors.Is(err, ErrVersionMissing) {
		t.Fatalf("Apply truncated = %v, want ErrVersionMissing", err)
	}

	broken := fstest.MapFS{
		"1_users.sql": source["1_users.sql"],
		"2_seed.sql":  source["2_seed.sql"],
		"3_bad.sql":   {Data: []byte("-- no-transaction\nSELECT * FROM nope;")},
	}
	migrations, _ = Load(broken)
	if _, err := r.Apply(ctx, db, "postgres", migrations); err == nil {
		t.Fatal("Apply broken: expected error")
	}
	if _, err := r.Apply(ctx, db, "postgres", migrations); !errors.Is(err, ErrDirty) {
		t.Fatalf("Apply after failure = %v, want ErrDirty", err)
	}
}
