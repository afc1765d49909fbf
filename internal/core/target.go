package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/pgenv/internal/pgsql"
)

// Target selects the server a handle connects to. It is either a
// RemoteTarget or a LocalTarget.
type Target interface {
	isTarget()
	validate() error
}

// RemoteTarget is an existing server reached through URI. Its lifecycle is
// not managed.
type RemoteTarget struct {
	URI string
}

func (RemoteTarget) isTarget() {}

func (t RemoteTarget) validate() error {
	if t.URI == "" {
		return errors.New("remote uri must not be empty")
	}
	if _, err := pgsql.ParseServerURI(t.URI); err != nil {
		return err
	}
	return nil
}

// LocalTarget is a server process owned by the handle.
type LocalTarget struct {
	DataDir      string // root of every file the engine writes
	Port         int    // 0 picks a free port
	Username     string
	Password     string
	Persistent   bool
	StartTimeout time.Duration
	StopTimeout  time.Duration
	DownloadHost string
	Version      string
	BinariesPath string // non-empty selects locally installed binaries
}

func (LocalTarget) isTarget() {}

func (t LocalTarget) validate() error {
	var errs []error
	if t.DataDir == "" {
		errs = append(errs, errors.New("data directory must not be empty"))
	}
	if t.Port < 0 || t.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 0..65535, got %d", t.Port))
	}
	if t.Username == "" {
		errs = append(errs, errors.New("username must not be empty"))
	}
	if t.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", t.StartTimeout))
	}
	if t.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", t.StopTimeout))
	}
	return errors.Join(errs...)
}
