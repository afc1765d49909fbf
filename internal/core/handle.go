package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/pgenv/internal/catalog"
	"github.com/giantswarm/pgenv/internal/embedded"
	"github.com/giantswarm/pgenv/internal/engine"
	"github.com/giantswarm/pgenv/internal/metrics"
	"github.com/giantswarm/pgenv/internal/migrate"
	"github.com/giantswarm/pgenv/internal/netutil"
	"github.com/giantswarm/pgenv/internal/pgsql"
	"github.com/giantswarm/pgenv/internal/postgres"
)

// Row is one result row keyed by column name.
type Row = pgsql.Row

// LogicalDatabase is a database created inside the instance.
type LogicalDatabase struct {
	Name string
	URI  string
}

// State is the lifecycle state of a Handle.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SQLClient runs statements for a Handle. *pgsql.Client implements it.
type SQLClient interface {
	FetchAll(ctx context.Context, uri, statement string) ([]pgsql.Row, error)
	DatabaseExists(ctx context.Context, serverURI, name string) (bool, error)
	CreateDatabase(ctx context.Context, serverURI, name string) error
	DropDatabase(ctx context.Context, serverURI, name string) error
	ListDatabases(ctx context.Context, serverURI string) ([]string, error)
	Close() error
}

// Migrator applies the migration directory source to the database at uri
// and returns how many migrations were applied.
type Migrator interface {
	Migrate(ctx context.Context, uri, database, source string) (int, error)
}

// Catalog is the ledger of created databases. *catalog.Catalog implements it.
type Catalog interface {
	Record(ctx context.Context, server, name, uri string) error
	Forget(ctx context.Context, server, name string) error
	OlderThan(ctx context.Context, server string, cutoff time.Time) ([]catalog.Entry, error)
	Close() error
}

var (
	_ SQLClient = (*pgsql.Client)(nil)
	_ Catalog   = (*catalog.Catalog)(nil)
)

// defaultPorts is shared by every handle of the process so that two local
// targets never pick the same free port.
var defaultPorts = netutil.NewPortRegistry(nil)

// DefaultEngineFactory uses locally installed binaries when BinariesPath is
// set and downloaded binaries otherwise.
func DefaultEngineFactory(s engine.Settings) (engine.Engine, error) {
	if s.BinariesPath != "" {
		return postgres.New(s)
	}
	return embedded.New(s)
}

// sqlMigrator runs directory migrations over pooled connections.
type sqlMigrator struct {
	client *pgsql.Client
	runner *migrate.Runner
}

// NewSQLMigrator returns a Migrator reading migration directories from disk.
func NewSQLMigrator(client *pgsql.Client, logger *slog.Logger) Migrator {
	return sqlMigrator{client: client, runner: migrate.NewRunner(logger)}
}

func (m sqlMigrator) Migrate(ctx context.Context, uri, database, source string) (int, error) {
	migrations, err := migrate.LoadDir(source)
	if err != nil {
		return 0, err
	}
	db, err := m.client.Open(ctx, uri)
	if err != nil {
		return 0, err
	}
	return m.runner.Apply(ctx, db, database, migrations)
}

// HandleParams holds the collaborators of a Handle. Only Target is required.
type HandleParams struct {
	Target   Target
	Ports    *netutil.PortRegistry // nil: process-wide registry
	Engines  engine.Factory        // nil: DefaultEngineFactory
	SQL      SQLClient             // nil: a new *pgsql.Client
	Migrator Migrator              // nil: NewSQLMigrator
	Catalog  Catalog               // nil: no ledger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Handle is the connection to one PostgreSQL server: either a remote
// endpoint or a local engine it owns.
//
// Start, Stop and Close are serialized by startMu. The other operations only
// read the state and rely on the caller, normally the actor, not to race
// them against Stop.
type Handle struct {
	local   *LocalTarget
	eng     engine.Engine
	baseURI string
	server  string // redacted baseURI, the catalog key
	port    int
	ports   *netutil.PortRegistry

	sql      SQLClient
	migrator Migrator
	catalog  Catalog
	metrics  *metrics.Metrics
	log      *slog.Logger

	state atomic.Int32

	startMu   sync.Mutex
	setupDone bool // protected by startMu
	closed    bool // protected by startMu
}

// NewHandle builds a handle. For a local target it reserves the port and
// builds the engine; no process is started and nothing is written to disk.
func NewHandle(p HandleParams) (*Handle, error) {
	if p.Target == nil {
		return nil, errors.New("target must not be nil")
	}
	if err := p.Target.validate(); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	log := p.Logger
	if log == nil {
		log = Logger()
	}
	h := &Handle{
		ports:   p.Ports,
		catalog: p.Catalog,
		metrics: p.Metrics,
	}
	if h.ports == nil {
		h.ports = defaultPorts
	}

	switch t := p.Target.(type) {
	case RemoteTarget:
		h.baseURI = t.URI
		h.log = log.With("target", "remote")
	case LocalTarget:
		port, err := h.reservePort(t.Port)
		if err != nil {
			return nil, err
		}
		h.port = port
		t.Port = port
		h.local = &t
		h.log = log.With("target", "local", "port", port)

		factory := p.Engines
		if factory == nil {
			factory = DefaultEngineFactory
		}
		eng, err := factory(engine.Settings{
			RootDir:      t.DataDir,
			Port:         port,
			Username:     t.Username,
			Password:     t.Password,
			Persistent:   t.Persistent,
			StartTimeout: t.StartTimeout,
			StopTimeout:  t.StopTimeout,
			DownloadHost: t.DownloadHost,
			Version:      t.Version,
			BinariesPath: t.BinariesPath,
			Logger:       h.log,
		})
		if err != nil {
			h.ports.Release(port)
			return nil, fmt.Errorf("build engine: %w", err)
		}
		h.eng = eng
		h.baseURI = eng.URI()
	default:
		return nil, fmt.Errorf("unsupported target %T", p.Target)
	}
	h.server = pgsql.Redact(h.baseURI)

	h.sql = p.SQL
	h.migrator = p.Migrator
	if h.sql == nil || h.migrator == nil {
		client, ok := h.sql.(*pgsql.Client)
		if !ok {
			client = pgsql.NewClient(h.log)
		}
		if h.sql == nil {
			h.sql = client
		}
		if h.migrator == nil {
			h.migrator = NewSQLMigrator(client, h.log)
		}
	}
	return h, nil
}

func (h *Handle) reservePort(port int) (int, error) {
	if port == 0 {
		p, err := h.ports.AllocatePort()
		if err != nil {
			return 0, fmt.Errorf("allocate port: %w", err)
		}
		return p, nil
	}
	if err := h.ports.Claim(port); err != nil {
		return 0, fmt.Errorf("claim port %d: %w", port, err)
	}
	return port, nil
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// IsLocal reports whether the handle owns an engine.
func (h *Handle) IsLocal() bool {
	return h.local != nil
}

// Port returns the port of a local engine, or 0 for a remote target.
func (h *Handle) Port() int {
	return h.port
}

// BaseURI returns the URI of the maintenance database.
func (h *Handle) BaseURI() string {
	return h.baseURI
}

// DatabaseURI returns the URI of database name on this server.
func (h *Handle) DatabaseURI(name string) string {
	uri, err := pgsql.WithDatabase(h.baseURI, name)
	if err != nil {
		// baseURI was validated at construction.
		panic(fmt.Sprintf("pgenv: derive database uri: %v", err))
	}
	return uri
}

// Start makes the server available. For a local target it runs the engine
// setup on first use and starts the engine bounded by StartTimeout. Starting
// a running handle is a no-op; a failed start is retried by the next call.
func (h *Handle) Start(ctx context.Context) (bool, error) {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.closed {
		return false, fmt.Errorf("%w: handle closed", ErrEngineStart)
	}
	if h.State() == StateRunning {
		return true, nil
	}
	if h.local == nil {
		h.state.Store(int32(StateRunning))
		return true, nil
	}

	startTime := time.Now()
	if !h.setupDone {
		h.log.Debug("setting up engine", "data_dir", h.local.DataDir)
		if err := h.eng.Setup(ctx); err != nil {
			return false, fmt.Errorf("%w: setup: %w", ErrEngineStart, err)
		}
		h.setupDone = true
	}

	startCtx, cancel := context.WithTimeout(ctx, h.local.StartTimeout)
	defer cancel()
	if err := h.eng.Start(startCtx); err != nil {
		return false, fmt.Errorf("%w: %w", ErrEngineStart, err)
	}
	h.state.Store(int32(StateRunning))
	h.log.Info("engine started", "elapsed", time.Since(startTime))
	return true, nil
}

// Stop terminates a local engine. Stopping a handle that is not running is
// a no-op. The state is Stopped afterwards even when the engine reported
// an error, since the process is no longer in a known-running state.
func (h *Handle) Stop(ctx context.Context) (bool, error) {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	return h.stopLocked(ctx)
}

func (h *Handle) stopLocked(ctx context.Context) (bool, error) {
	if h.State() != StateRunning {
		return true, nil
	}
	h.state.Store(int32(StateStopped))

	// Pooled connections point at a server that is going away.
	if err := h.sql.Close(); err != nil {
		h.log.Debug("close connection pools", "error", err)
	}
	if h.local == nil {
		return true, nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, h.effectiveStopTimeout(ctx))
	defer cancel()
	if err := h.eng.Stop(stopCtx); err != nil {
		return false, fmt.Errorf("%w: %w", ErrEngineStop, err)
	}
	h.log.Info("engine stopped")
	return true, nil
}

// effectiveStopTimeout is the smaller of the context's remaining time and
// the configured StopTimeout, and never below one millisecond.
func (h *Handle) effectiveStopTimeout(ctx context.Context) time.Duration {
	timeout := h.local.StopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// Close is the safety net run when the handle is discarded. A local engine
// that is still running is stopped with a warning. The reserved port, the
// connection pools and the catalog are released. Close is idempotent.
func (h *Handle) Close(ctx context.Context) error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.State() == StateRunning && h.local != nil {
		h.log.Warn("handle closed while engine running; stopping it")
	}
	if _, err := h.stopLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.sql.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection pools: %w", err))
	}
	if h.catalog != nil {
		if err := h.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	if h.local != nil {
		h.ports.Release(h.port)
	}
	return errors.Join(errs...)
}

func (h *Handle) requireRunning() error {
	if s := h.State(); s != StateRunning {
		return fmt.Errorf("%w: state %s", ErrNotRunning, s)
	}
	return nil
}

// CreateDatabase creates a logical database. An empty name is replaced by a
// generated one.
func (h *Handle) CreateDatabase(ctx context.Context, name string) (LogicalDatabase, error) {
	if err := h.requireRunning(); err != nil {
		return LogicalDatabase{}, err
	}
	if name == "" {
		name = GenerateDatabaseName()
	}
	if err := ValidateDatabaseName(name); err != nil {
		return LogicalDatabase{}, fmt.Errorf("%w: %w", ErrDatabaseCreate, err)
	}
	if err := h.sql.CreateDatabase(ctx, h.baseURI, name); err != nil {
		return LogicalDatabase{}, fmt.Errorf("%w: %w", ErrDatabaseCreate, err)
	}

	db := LogicalDatabase{Name: name, URI: h.DatabaseURI(name)}
	h.metrics.DatabaseCreated()
	if h.catalog != nil {
		if err := h.catalog.Record(ctx, h.server, name, pgsql.Redact(db.URI)); err != nil {
			h.log.Warn("catalog record failed", "database", name, "error", err)
		}
	}
	h.log.Debug("database created", "database", name)
	return db, nil
}

// DropDatabase disconnects every session of database name and drops it.
// System databases are never dropped.
func (h *Handle) DropDatabase(ctx context.Context, name string) error {
	if err := h.requireRunning(); err != nil {
		return err
	}
	if pgsql.IsSystemDatabase(name) {
		return fmt.Errorf("%w: %s is a system database", ErrDatabaseDrop, name)
	}

	exists, err := h.sql.DatabaseExists(ctx, h.baseURI, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseDrop, err)
	}
	if !exists {
		h.forget(ctx, name)
		return fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
	}

	if err := h.sql.DropDatabase(ctx, h.baseURI, name); err != nil {
		if errors.Is(err, pgsql.ErrNoSuchDatabase) {
			h.forget(ctx, name)
			return fmt.Errorf("%w: %w", ErrDatabaseNotFound, err)
		}
		return fmt.Errorf("%w: %w", ErrDatabaseDrop, err)
	}
	h.metrics.DatabaseDropped()
	h.forget(ctx, name)
	h.log.Debug("database dropped", "database", name)
	return nil
}

func (h *Handle) forget(ctx context.Context, name string) {
	if h.catalog == nil {
		return
	}
	if err := h.catalog.Forget(ctx, h.server, name); err != nil {
		h.log.Warn("catalog forget failed", "database", name, "error", err)
	}
}

// targetURI is the URI of database name, or the base URI for an empty name.
func (h *Handle) targetURI(name string) string {
	if name == "" {
		return h.baseURI
	}
	return h.DatabaseURI(name)
}

// Migrate applies the migration directory source to database name and
// returns how many migrations were applied.
func (h *Handle) Migrate(ctx context.Context, name, source string) (int, error) {
	if err := h.requireRunning(); err != nil {
		return 0, err
	}
	database := name
	if database == "" {
		database = engine.MaintenanceDatabase
	}
	n, err := h.migrator.Migrate(ctx, h.targetURI(name), database, source)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrMigration, err)
	}
	h.log.Debug("migrations applied", "database", database, "source", source, "applied", n)
	return n, nil
}

// ExecuteSQL runs statement against database name, or the maintenance
// database when name is empty, and returns every row produced.
func (h *Handle) ExecuteSQL(ctx context.Context, name, statement string) ([]Row, error) {
	if err := h.requireRunning(); err != nil {
		return nil, err
	}
	rows, err := h.sql.FetchAll(ctx, h.targetURI(name), statement)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return rows, nil
}

// ListDatabases returns the sorted names of all non-system databases.
func (h *Handle) ListDatabases(ctx context.Context) ([]string, error) {
	if err := h.requireRunning(); err != nil {
		return nil, err
	}
	names, err := h.sql.ListDatabases(ctx, h.baseURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return names, nil
}

// HasDatabase reports whether database name exists.
func (h *Handle) HasDatabase(ctx context.Context, name string) (bool, error) {
	if err := h.requireRunning(); err != nil {
		return false, err
	}
	ok, err := h.sql.DatabaseExists(ctx, h.baseURI, name)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return ok, nil
}

// Reap drops every catalogued database of this server created more than
// maxAge ago and returns the dropped names. Catalogue entries whose database
// no longer exists are forgotten. Without a catalog Reap does nothing.
func (h *Handle) Reap(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if err := h.requireRunning(); err != nil {
		return nil, err
	}
	if h.catalog == nil {
		return nil, nil
	}

	entries, err := h.catalog.OlderThan(ctx, h.server, time.Now().Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog: %w", ErrDatabaseDrop, err)
	}

	var (
		dropped []string
		errs    []error
	)
	for _, e := range entries {
		err := h.DropDatabase(ctx, e.Name)
		switch {
		case err == nil:
			dropped = append(dropped, e.Name)
		case errors.Is(err, ErrDatabaseNotFound):
			// Already gone; DropDatabase forgot the entry.
		default:
			errs = append(errs, err)
		}
	}
	if len(dropped) > 0 {
		h.log.Info("reaped databases", "count", len(dropped), "max_age", maxAge)
	}
	return dropped, errors.Join(errs...)
}
