package pgenv

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("pgenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("pgenv: %s must not be empty", name))
	}
}

// Option configures a System during construction via New.
//
// Options panic on values that can never be valid (empty paths, non-positive
// durations, out-of-range ports). Option values are typically constants, so
// such a value is a programmer error; the pattern mirrors
// [regexp.MustCompile]. Values that depend on the environment, such as a
// malformed remote URI, are reported by New as errors.
type Option func(*systemConfig)

// WithRemote connects to an existing server at uri instead of running a
// local engine. The server lifecycle is not managed: Start and Stop only
// toggle whether requests reach it. Local engine options are ignored.
//
// Panics if uri is empty.
func WithRemote(uri string) Option {
	requireNonEmpty("remote uri", uri)
	return func(c *systemConfig) {
		c.remoteURI = uri
	}
}

// WithRootPath sets the directory holding the engine data, the downloaded
// binaries cache and the catalog. Separate systems running at the same time
// need separate root paths.
//
// Default: filepath.Join(os.TempDir(), DefaultRootDirName).
//
// Panics if dir is empty.
func WithRootPath(dir string) Option {
	requireNonEmpty("root path", dir)
	return func(c *systemConfig) {
		c.RootPath = dir
	}
}

// WithPort sets the port of the local engine. 0 picks a free port.
//
// Panics if port is outside 0..65535.
func WithPort(port int) Option {
	if port < 0 || port > 65535 {
		panic(fmt.Sprintf("pgenv: port must be in 0..65535, got %d", port))
	}
	return func(c *systemConfig) {
		c.local.Port = port
	}
}

// WithCredentials sets the superuser of the local engine. An empty password
// configures trust authentication.
//
// Default: postgres / postgres.
//
// Panics if username is empty.
func WithCredentials(username, password string) Option {
	requireNonEmpty("username", username)
	return func(c *systemConfig) {
		c.local.Username = username
		c.local.Password = password
	}
}

// WithPersistent keeps the data directory when the engine stops, so a later
// System on the same root path sees the same databases.
//
// Default: false.
func WithPersistent(persistent bool) Option {
	return func(c *systemConfig) {
		c.local.Persistent = persistent
	}
}

// WithStartTimeout bounds engine startup. The first start of the embedded
// engine downloads and extracts binaries, so allow for that on cold caches.
//
// Default: 15 seconds.
//
// Panics if d <= 0.
func WithStartTimeout(d time.Duration) Option {
	requirePositive("start timeout", d)
	return func(c *systemConfig) {
		c.local.StartTimeout = d
	}
}

// WithStopTimeout bounds a graceful engine shutdown.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) Option {
	requirePositive("stop timeout", d)
	return func(c *systemConfig) {
		c.local.StopTimeout = d
	}
}

// WithDownloadHost sets the Maven repository serving embedded PostgreSQL
// binaries.
//
// Default: DefaultDownloadHost.
//
// Panics if host is empty.
func WithDownloadHost(host string) Option {
	requireNonEmpty("download host", host)
	return func(c *systemConfig) {
		c.local.DownloadHost = host
	}
}

// WithPostgresVersion selects the embedded PostgreSQL version, such as
// "16.4.0".
//
// Panics if version is empty.
func WithPostgresVersion(version string) Option {
	requireNonEmpty("postgres version", version)
	return func(c *systemConfig) {
		c.local.Version = version
	}
}

// WithBinariesPath runs the initdb and postgres binaries found in dir
// instead of downloading the embedded distribution.
//
// Panics if dir is empty.
func WithBinariesPath(dir string) Option {
	requireNonEmpty("binaries path", dir)
	return func(c *systemConfig) {
		c.local.BinariesPath = dir
	}
}

// WithQueueSize sets the request queue capacity. Senders block while the
// queue is full.
//
// Default: 32.
//
// Panics if size <= 0.
func WithQueueSize(size int) Option {
	requirePositive("queue size", size)
	return func(c *systemConfig) {
		c.QueueSize = size
	}
}

// WithOperationTimeout bounds each request once the actor picks it up.
//
// Default: no bound.
//
// Panics if d <= 0.
func WithOperationTimeout(d time.Duration) Option {
	requirePositive("operation timeout", d)
	return func(c *systemConfig) {
		c.OperationTimeout = d
	}
}

// WithMetricsRegisterer registers the pgenv collectors on reg. Systems
// sharing a registry share their collectors.
//
// Default: metrics are collected but not registered.
//
// Panics if reg is nil.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	if reg == nil {
		panic("pgenv: metrics registerer must not be nil")
	}
	return func(c *systemConfig) {
		c.Registerer = reg
	}
}

// WithoutCatalog disables the ledger of created databases. Reap then has
// nothing to drop.
func WithoutCatalog() Option {
	return func(c *systemConfig) {
		c.Catalog = false
	}
}
