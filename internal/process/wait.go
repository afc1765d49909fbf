package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// Errors returned by WaitReady.
const (
	// ErrProcessExited indicates the process exited before becoming ready.
	ErrProcessExited = sentinel.Error("process exited before becoming ready")

	// ErrNotReady indicates the probe kept failing until the timeout.
	ErrNotReady = sentinel.Error("not ready before timeout")
)

// Probe checks once whether a server accepts connections. A nil error
// means ready; any error is treated as "not yet".
type Probe func(ctx context.Context) error

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger

	// Exited, when set, aborts the wait as soon as it is closed.
	Exited <-chan struct{}
}

func (c WaitReadyConfig) validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}

// WaitReady runs probe every Interval until it succeeds. On timeout the
// returned error wraps ErrNotReady and the last probe error; when Exited
// closes first it wraps ErrProcessExited.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, probe Probe) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("wait ready: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		attempts int
		lastErr  error
	)
	err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true, func(pollCtx context.Context) (bool, error) {
		select {
		case <-cfg.Exited:
			return false, ErrProcessExited
		default:
		}

		attempts++
		if lastErr = probe(pollCtx); lastErr != nil {
			log.Debug("not ready yet", "name", cfg.Name, "attempt", attempts, "error", lastErr)
			return false, nil
		}
		return true, nil
	})
	switch {
	case err == nil:
		log.Debug("ready", "name", cfg.Name, "attempts", attempts)
		return nil
	case errors.Is(err, ErrProcessExited):
		return fmt.Errorf("%s: %w", cfg.Name, err)
	case ctx.Err() != nil:
		return fmt.Errorf("wait for %s: %w", cfg.Name, ctx.Err())
	case lastErr != nil:
		return fmt.Errorf("%s after %d attempts: %w: %w", cfg.Name, attempts, ErrNotReady, lastErr)
	}
	return fmt.Errorf("%s after %d attempts: %w", cfg.Name, attempts, ErrNotReady)
}
