// Package pgenv runs a PostgreSQL instance for tests and local development
// and hands out isolated logical databases on it.
//
// A System owns one instance, either a local engine (the embedded
// PostgreSQL distribution, or binaries installed on the host) or an existing
// remote server. Every request goes through a single actor goroutine, so a
// System can be shared by any number of goroutines without locking.
//
// # Basic Usage
//
//	import "github.com/giantswarm/pgenv"
//
//	ctx := context.Background()
//
//	sys, err := pgenv.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Close(ctx)
//
//	db, err := sys.CreateDatabase(ctx, "") // starts the engine on first use
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.DropDatabase(ctx, db.Name)
//
//	conn, err := sql.Open("postgres", db.URI)
//
// # Parallel Testing
//
// Share one System across tests and give each test its own database:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    sys, err := pgenv.New(ctx, pgenv.WithStartTimeout(2*time.Minute))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    system = sys
//	    code := m.Run()
//	    _ = sys.Close(ctx)
//	    os.Exit(code)
//	}
//
//	func TestOrders(t *testing.T) {
//	    t.Parallel()
//	    db, err := system.CreateDatabase(t.Context(), "")
//	    ...
//	}
//
// # Migrations
//
// Migrate applies a directory of <version>_<description>.sql files, recording
// them in a _sqlx_migrations table so the history is shared with sqlx based
// tooling. A file starting with "-- no-transaction" runs outside a
// transaction.
//
// # Asynchronous Requests
//
// Send enqueues a request and reports the outcome through a callback that
// is invoked exactly once:
//
//	err := sys.Send(ctx, pgenv.CreateDatabaseRequest{}, func(v any, err error) {
//	    ...
//	})
//
// Requests are processed in arrival order. Send blocks while the queue (see
// WithQueueSize) is full. A request that cannot be queued, because the
// System is closed or ctx ended, fails with ErrNotDelivered.
//
// # Reaping
//
// Databases created through a System are recorded in a SQLite catalog under
// the root path. Reap drops those older than a given age, which cleans up
// after test runs that were killed before dropping their databases.
package pgenv
