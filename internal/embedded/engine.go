package embedded

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/giantswarm/pgenv/internal/engine"
	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/process"
	"github.com/gofrs/flock"
)

// DefaultVersion is the PostgreSQL version downloaded when none is set.
var DefaultVersion = string(embeddedpostgres.V14)

// server is the subset of *embeddedpostgres.EmbeddedPostgres used here.
type server interface {
	Start() error
	Stop() error
}

// Engine implements engine.Engine with embedded-postgres.
type Engine struct {
	settings engine.Settings
	config   embeddedpostgres.Config
	logs     *process.LogFiles
	server   server
	lock     *flock.Flock

	// newServer is replaced in tests.
	newServer func(embeddedpostgres.Config) server
}

var _ engine.Engine = (*Engine)(nil)

// New builds an Engine. It performs no I/O.
func New(settings engine.Settings) (engine.Engine, error) {
	return newEngine(settings)
}

func newEngine(settings engine.Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedded settings: %w", err)
	}
	if settings.Version == "" {
		settings.Version = DefaultVersion
	}
	return &Engine{
		settings: settings,
		newServer: func(cfg embeddedpostgres.Config) server {
			return embeddedpostgres.NewDatabase(cfg)
		},
	}, nil
}

// URI returns the maintenance database URI.
func (e *Engine) URI() string {
	return e.settings.URI()
}

// CachePath is where downloaded archives are kept. It lives outside the data
// directory so that non-persistent engines download only once.
func (e *Engine) CachePath() string {
	return filepath.Join(e.settings.RootDir, "cache")
}

// ExtractPath receives the extracted binaries. embedded-postgres empties it
// on every start, so it must not hold anything else.
func (e *Engine) ExtractPath() string {
	return filepath.Join(e.settings.RuntimeDir(), "embedded")
}

// Setup creates the engine directories, opens the server log and derives
// the embedded-postgres configuration. Binaries are downloaded by the first
// Start.
func (e *Engine) Setup(_ context.Context) error {
	for _, dir := range []string{e.settings.RootDir, e.settings.RuntimeDir(), e.CachePath()} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return err
		}
	}
	if e.logs == nil {
		logs, err := process.NewLogFiles(e.settings.RuntimeDir(), "postgres")
		if err != nil {
			return fmt.Errorf("open postgres logs: %w", err)
		}
		e.logs = &logs
	}
	e.config = e.buildConfig(e.logs.Stdout())
	return nil
}

func (e *Engine) buildConfig(out io.Writer) embeddedpostgres.Config {
	s := e.settings
	cfg := embeddedpostgres.DefaultConfig().
		Username(s.Username).
		Password(s.Password).
		Database(engine.MaintenanceDatabase).
		Version(embeddedpostgres.PostgresVersion(s.Version)).
		Port(uint32(s.Port)).
		RuntimePath(e.ExtractPath()).
		DataPath(s.DataDir()).
		CachePath(e.CachePath()).
		StartTimeout(s.StartTimeout).
		Logger(out)
	if s.DownloadHost != "" {
		cfg = cfg.BinaryRepositoryURL(s.DownloadHost)
	}
	return cfg
}

// Start downloads binaries when needed, initializes the data directory and
// starts the server. embedded-postgres is not context aware; the start is
// bounded by StartTimeout instead, and a start that outlives ctx is stopped
// again.
func (e *Engine) Start(ctx context.Context) error {
	if e.server != nil {
		return process.ErrAlreadyStarted
	}
	if e.logs == nil {
		if err := e.Setup(ctx); err != nil {
			return err
		}
	}

	fl, err := engine.LockDataDir(ctx, e.settings.LockPath())
	if err != nil {
		return err
	}
	e.lock = fl

	srv := e.newServer(e.config)
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	select {
	case err := <-done:
		if err != nil {
			e.release()
			return fmt.Errorf("start embedded postgres (see %s): %w", e.logs.StdoutPath(), err)
		}
	case <-ctx.Done():
		e.lock = nil
		log := e.settings.Log()
		go func() {
			if err := <-done; err == nil {
				_ = srv.Stop()
			}
			engine.UnlockDataDir(log, fl)
		}()
		return fmt.Errorf("start embedded postgres: %w", ctx.Err())
	}

	e.server = srv
	e.settings.Log().Info("embedded postgres started",
		"port", e.settings.Port, "version", e.settings.Version, "data_dir", e.settings.DataDir())
	return nil
}

// Stop terminates the server. Unless the engine is persistent the data
// directory is removed afterwards.
func (e *Engine) Stop(_ context.Context) error {
	if e.server == nil {
		return nil
	}
	srv := e.server
	e.server = nil

	start := time.Now()
	err := srv.Stop()
	e.settings.Log().Debug("embedded postgres stopped", "elapsed", time.Since(start), "error", err)

	if !e.settings.Persistent {
		if rmErr := fileutil.RemoveDir(e.settings.DataDir()); rmErr != nil {
			e.settings.Log().Warn("remove data directory", "path", e.settings.DataDir(), "error", rmErr)
		}
	}
	e.release()
	e.logs.Close()
	e.logs = nil
	if err != nil {
		return fmt.Errorf("stop embedded postgres: %w", err)
	}
	return nil
}

func (e *Engine) release() {
	engine.UnlockDataDir(e.settings.Log(), e.lock)
	e.lock = nil
}
