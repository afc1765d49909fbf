package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"
)

// MaintenanceDatabase is the database every server URI points at. It is
// always present and never handed out as a logical database.
const MaintenanceDatabase = "postgres"

// Host is the loopback address local engines listen on.
const Host = "127.0.0.1"

// Engine is a PostgreSQL server process owned by this process.
type Engine interface {
	// Setup performs one-time provisioning: binaries and data directory.
	Setup(ctx context.Context) error
	// Start launches the server and returns once it accepts connections.
	Start(ctx context.Context) error
	// Stop terminates the server. Stopping a stopped engine is a no-op.
	Stop(ctx context.Context) error
	// URI is the connection URI of the maintenance database.
	URI() string
}

// Factory builds an Engine from settings. It performs no I/O.
type Factory func(Settings) (Engine, error)

// Settings configures a local engine. Every file the engine writes lives
// below RootDir.
type Settings struct {
	RootDir      string
	Port         int
	Username     string
	Password     string
	Persistent   bool // keep the data directory across Stop
	StartTimeout time.Duration
	StopTimeout  time.Duration
	DownloadHost string // binary repository, embedded engine only
	Version      string // PostgreSQL version, embedded engine only
	BinariesPath string // directory holding initdb and postgres
	Logger       *slog.Logger
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.RootDir == "" {
		errs = append(errs, errors.New("root directory must not be empty"))
	}
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1..65535, got %d", s.Port))
	}
	if s.Username == "" {
		errs = append(errs, errors.New("username must not be empty"))
	}
	if s.StartTimeout <= 0 {
		errs = append(errs, errors.New("start timeout must be positive"))
	}
	if s.StopTimeout <= 0 {
		errs = append(errs, errors.New("stop timeout must be positive"))
	}
	return errors.Join(errs...)
}

// DataDir is the PostgreSQL data directory.
func (s Settings) DataDir() string {
	return filepath.Join(s.RootDir, "db")
}

// RuntimeDir holds sockets, pid files and extracted binaries.
func (s Settings) RuntimeDir() string {
	return filepath.Join(s.RootDir, "run")
}

// LockPath is the file locked while the engine runs. It lives next to the
// data directory so that removing the data directory leaves the lock intact.
func (s Settings) LockPath() string {
	return filepath.Join(s.RootDir, "engine.lock")
}

// URI returns the maintenance database URI.
func (s Settings) URI() string {
	return URI(s.Username, s.Password, Host, s.Port, MaintenanceDatabase)
}

// Log returns the configured logger or slog.Default().
func (s Settings) Log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// URI builds a postgres:// connection URI with TLS disabled, which is what a
// loopback engine expects.
func URI(username, password, host string, port int, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	if password != "" {
		u.User = url.UserPassword(username, password)
	} else {
		u.User = url.User(username)
	}
	return u.String()
}
