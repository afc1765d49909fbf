package pgenv

import (
	"time"

	"github.com/giantswarm/pgenv/internal/core"
)

// Default configuration values for New.
// These constants are exported so callers can reference the defaults
// when building configurations relative to them (e.g.,
// 2 * DefaultStartTimeout).
const (
	// DefaultQueueSize is the capacity of the request queue. Senders block
	// while it is full.
	DefaultQueueSize = core.DefaultQueueSize

	// DefaultRootDirName is the directory name under the system temp
	// directory where engine data and the catalog are stored. The full path
	// is computed as filepath.Join(os.TempDir(), DefaultRootDirName).
	DefaultRootDirName = "pgenv"

	// DefaultUsername is the superuser created for a local engine.
	DefaultUsername = "postgres"

	// DefaultPassword is the superuser password of a local engine.
	DefaultPassword = "postgres"

	// DefaultStartTimeout bounds engine startup, including the first-run
	// binary download and cluster initialisation of the embedded engine.
	DefaultStartTimeout = 15 * time.Second

	// DefaultStopTimeout bounds a graceful engine shutdown.
	DefaultStopTimeout = 10 * time.Second

	// DefaultDownloadHost serves the embedded PostgreSQL binaries.
	DefaultDownloadHost = "https://repo1.maven.org/maven2"

	// DefaultReapMaxAge is the age after which catalogued databases are
	// reaped when no explicit age is given.
	DefaultReapMaxAge = time.Hour
)
