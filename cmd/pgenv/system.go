package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giantswarm/pgenv"
	"github.com/giantswarm/pgenv/internal/config"
)

// shutdownGrace is added to the engine stop timeout when waiting for the
// system to close.
const shutdownGrace = 5 * time.Second

// systemOptions translates the configuration into pgenv options.
func systemOptions(cfg *config.Config, reg prometheus.Registerer) []pgenv.Option {
	d := cfg.Database
	opts := []pgenv.Option{
		pgenv.WithRootPath(d.RootPath),
		pgenv.WithQueueSize(cfg.Actor.QueueSize),
	}
	if cfg.Actor.OperationTimeout > 0 {
		opts = append(opts, pgenv.WithOperationTimeout(cfg.Actor.OperationTimeout))
	}
	if !cfg.Catalog.Enabled {
		opts = append(opts, pgenv.WithoutCatalog())
	}
	if reg != nil {
		opts = append(opts, pgenv.WithMetricsRegisterer(reg))
	}

	if d.IsExternal() {
		return append(opts, pgenv.WithRemote(d.URI))
	}

	opts = append(opts,
		pgenv.WithPort(d.Port),
		pgenv.WithCredentials(d.Username, d.Password),
		pgenv.WithPersistent(d.Persistent),
		pgenv.WithStartTimeout(d.Timeout),
		pgenv.WithStopTimeout(d.StopTimeout),
	)
	if d.Host != "" {
		opts = append(opts, pgenv.WithDownloadHost(d.Host))
	}
	if d.Version != "" {
		opts = append(opts, pgenv.WithPostgresVersion(d.Version))
	}
	if d.BinariesPath != "" {
		opts = append(opts, pgenv.WithBinariesPath(d.BinariesPath))
	}
	return opts
}

// openSystem creates a system whose lifetime ends only through close, so
// in-flight requests finish before the engine stops.
func (a *app) openSystem(ctx context.Context, reg prometheus.Registerer) (pgenv.System, func() error, error) {
	sys, err := pgenv.New(context.WithoutCancel(ctx), systemOptions(a.cfg, reg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("create system: %w", err)
	}
	closeFn := func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Database.StopTimeout+shutdownGrace)
		defer cancel()
		return sys.Close(closeCtx)
	}
	return sys, closeFn, nil
}
