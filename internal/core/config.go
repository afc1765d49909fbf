package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/giantswarm/pgenv/internal/catalog"
	"github.com/giantswarm/pgenv/internal/engine"
	"github.com/giantswarm/pgenv/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// SystemConfig holds everything needed to assemble a running system.
//
// All fields are immutable after NewSystem.
type SystemConfig struct {
	// Target is the server to manage or connect to.
	Target Target

	// RootPath holds the catalog. For a local target it is also the engine
	// data root.
	RootPath string

	// QueueSize is the actor channel capacity.
	QueueSize int

	// OperationTimeout bounds each request once dequeued. Zero disables it.
	OperationTimeout time.Duration

	// Catalog enables the SQLite ledger of created databases.
	Catalog bool

	// Registerer receives the metrics collectors. Nil disables registration.
	Registerer prometheus.Registerer

	// Engines overrides the engine factory. Nil uses DefaultEngineFactory.
	Engines engine.Factory
}

// Validate reports every invalid field.
func (c SystemConfig) Validate() error {
	var errs []error

	if c.Target == nil {
		errs = append(errs, errors.New("target must not be nil"))
	} else if err := c.Target.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RootPath == "" {
		errs = append(errs, errors.New("root path must not be empty"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be greater than 0, got %d", c.QueueSize))
	}
	if c.OperationTimeout < 0 {
		errs = append(errs, fmt.Errorf("operation timeout must not be negative, got %s", c.OperationTimeout))
	}

	return errors.Join(errs...)
}

// NewSystem assembles handle, manager and actor from cfg. The caller runs
// the returned actor with Run. Opening the catalog is the only I/O.
func NewSystem(ctx context.Context, cfg SystemConfig) (*Actor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := Logger()
	m := metrics.New(cfg.Registerer)

	params := HandleParams{
		Target:  cfg.Target,
		Engines: cfg.Engines,
		Metrics: m,
		Logger:  log,
	}
	var cat *catalog.Catalog
	if cfg.Catalog {
		var err error
		cat, err = catalog.Open(ctx, filepath.Join(cfg.RootPath, catalog.FileName), log)
		if err != nil {
			return nil, err
		}
		params.Catalog = cat
	}

	h, err := NewHandle(params)
	if err != nil {
		if cat != nil {
			_ = cat.Close()
		}
		return nil, err
	}

	return NewActor(NewManager(h), ActorConfig{
		QueueSize:        cfg.QueueSize,
		OperationTimeout: cfg.OperationTimeout,
		Metrics:          m,
	}), nil
}
