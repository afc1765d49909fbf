package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/gofrs/flock"
)

// lockRetryInterval is the delay between lock attempts while another OS
// process holds the data directory.
const lockRetryInterval = 50 * time.Millisecond

// LockDataDir takes an exclusive lock on path, retrying until ctx is done.
// A second engine pointed at the same root waits here instead of corrupting
// the running server's files.
func LockDataDir(ctx context.Context, path string) (*flock.Flock, error) {
	if err := fileutil.EnsureDirForFile(path); err != nil {
		return nil, err
	}
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("lock data directory %s: %w", path, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("lock data directory %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("lock data directory %s: lock not acquired", path)
	}
	return fl, nil
}

// UnlockDataDir releases and closes the lock. The lock file stays on disk;
// removing it could break a lock another process takes concurrently.
func UnlockDataDir(logger *slog.Logger, fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Close(); err != nil {
		logger.Debug("release data directory lock", "path", fl.Path(), "error", err)
	}
}
