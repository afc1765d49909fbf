package postgres

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/giantswarm/pgenv/internal/engine"
	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/pgsql"
	"github.com/giantswarm/pgenv/internal/process"
	"github.com/gofrs/flock"
)

// readinessPollInterval is the interval between connection attempts while
// the server starts up.
const readinessPollInterval = 50 * time.Millisecond

// readinessPingTimeout bounds one readiness ping.
const readinessPingTimeout = time.Second

var _ process.Stoppable = (*Process)(nil)

// Process is one postgres server child process.
type Process struct {
	settings engine.Settings
	binary   string
	base     process.BaseProcess
}

// Stop terminates the server with SIGINT, escalating to SIGKILL.
func (p *Process) Stop(timeout time.Duration) error {
	return p.base.Stop(timeout)
}

// Close releases the log files, stopping a server that is still running.
func (p *Process) Close() {
	p.base.Close()
}

func (p *Process) start() error {
	args := []string{
		"-D", p.settings.DataDir(),
		"-p", fmt.Sprint(p.settings.Port),
		"-h", engine.Host,
		"-k", p.settings.RuntimeDir(),
	}
	// The server must outlive the start context; exec.Command, not CommandContext.
	cmd := exec.Command(p.binary, args...)
	if err := p.base.SetupAndStart(cmd, p.settings.RuntimeDir()); err != nil {
		return fmt.Errorf("setup and start postgres process: %w", err)
	}
	return nil
}

func (p *Process) waitReady(ctx context.Context) error {
	log := p.base.Logger()
	uri := p.settings.URI()
	if err := process.WaitReady(ctx, process.WaitReadyConfig{
		Name:     "postgres",
		Interval: readinessPollInterval,
		Timeout:  p.settings.StartTimeout,
		Logger:   log.With("port", p.settings.Port),
		Exited:   p.base.Exited(),
	}, func(checkCtx context.Context) error {
		pingCtx, cancel := context.WithTimeout(checkCtx, readinessPingTimeout)
		defer cancel()
		return pgsql.Ping(pingCtx, uri)
	}); err != nil {
		return fmt.Errorf("postgres not ready (see %s): %w", p.base.LogFiles().StderrPath(), err)
	}
	return nil
}

// Engine implements engine.Engine on top of system binaries.
type Engine struct {
	settings engine.Settings
	initdb   string
	postgres string
	proc     *Process
	lock     *flock.Flock
}

var _ engine.Engine = (*Engine)(nil)

// New builds an Engine. It performs no I/O; binaries are resolved by Setup.
func New(settings engine.Settings) (engine.Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres settings: %w", err)
	}
	return &Engine{settings: settings}, nil
}

// URI returns the maintenance database URI.
func (e *Engine) URI() string {
	return e.settings.URI()
}

// Setup resolves the initdb and postgres binaries and initializes the data
// directory when it holds no cluster yet.
func (e *Engine) Setup(ctx context.Context) error {
	initdb, err := e.resolve("initdb")
	if err != nil {
		return err
	}
	server, err := e.resolve("postgres")
	if err != nil {
		return err
	}
	e.initdb, e.postgres = initdb, server

	if err := fileutil.EnsureDir(e.settings.RuntimeDir()); err != nil {
		return err
	}
	return e.ensureCluster(ctx)
}

// Start launches the server and waits until it accepts connections. A
// failed start leaves nothing running.
func (e *Engine) Start(ctx context.Context) error {
	if e.proc != nil {
		return process.ErrAlreadyStarted
	}
	if e.postgres == "" {
		if err := e.Setup(ctx); err != nil {
			return err
		}
	}

	fl, err := engine.LockDataDir(ctx, e.settings.LockPath())
	if err != nil {
		return err
	}
	e.lock = fl

	// A non-persistent engine removed its cluster on the previous stop.
	if err := e.ensureCluster(ctx); err != nil {
		e.release()
		return err
	}

	p := &Process{
		settings: e.settings,
		binary:   e.postgres,
		base:     process.NewBaseProcess("postgres", e.settings.Log(), e.settings.StopTimeout, syscall.SIGINT),
	}
	if err := p.start(); err != nil {
		p.Close()
		e.release()
		return err
	}
	if err := p.waitReady(ctx); err != nil {
		_ = process.StopCloseAndNil(&p, e.settings.StopTimeout)
		e.release()
		return err
	}
	e.proc = p
	e.settings.Log().Info("postgres started", "port", e.settings.Port, "data_dir", e.settings.DataDir())
	return nil
}

// Stop terminates the server. Unless the engine is persistent the data
// directory is removed afterwards. Stopping a stopped engine is a no-op.
func (e *Engine) Stop(_ context.Context) error {
	if e.proc == nil {
		return nil
	}
	err := process.StopCloseAndNil(&e.proc, e.settings.StopTimeout)
	if !e.settings.Persistent {
		if rmErr := fileutil.RemoveDir(e.settings.DataDir()); rmErr != nil {
			e.settings.Log().Warn("remove data directory", "path", e.settings.DataDir(), "error", rmErr)
		}
	}
	e.release()
	if err != nil {
		return fmt.Errorf("stop postgres: %w", err)
	}
	return nil
}

func (e *Engine) release() {
	engine.UnlockDataDir(e.settings.Log(), e.lock)
	e.lock = nil
}

func (e *Engine) resolve(name string) (string, error) {
	if e.settings.BinariesPath != "" {
		path := filepath.Join(e.settings.BinariesPath, name)
		ok, err := fileutil.FileExists(path)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%s not found in %s", name, e.settings.BinariesPath)
		}
		return path, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", name, err)
	}
	return path, nil
}

// ensureCluster runs initdb unless the data directory already holds a
// cluster. A superuser password is passed through a temporary file.
func (e *Engine) ensureCluster(ctx context.Context) error {
	dataDir := e.settings.DataDir()
	ok, err := fileutil.FileExists(filepath.Join(dataDir, "PG_VERSION"))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := fileutil.RemoveDir(dataDir); err != nil {
		return err
	}

	args := []string{
		"-D", dataDir,
		"-U", e.settings.Username,
		"-E", "UTF8",
		"--no-sync",
	}
	if e.settings.Password != "" {
		pwFile := filepath.Join(e.settings.RuntimeDir(), "pwfile")
		if err := os.WriteFile(pwFile, []byte(e.settings.Password+"\n"), 0o600); err != nil {
			return fmt.Errorf("write password file: %w", err)
		}
		defer os.Remove(pwFile)
		args = append(args, "-A", "password", "--pwfile="+pwFile)
	} else {
		args = append(args, "-A", "trust")
	}

	cmd := exec.CommandContext(ctx, e.initdb, args...)
	if err := process.Run(ctx, cmd, e.settings.RuntimeDir(), "initdb"); err != nil {
		return fmt.Errorf("initialize data directory %s: %w", dataDir, err)
	}
	e.settings.Log().Debug("initialized data directory", "path", dataDir)
	return nil
}
