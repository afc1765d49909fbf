package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/pgenv"
	"github.com/giantswarm/pgenv/internal/reaper"
)

func serveCmd(a *app) *cobra.Command {
	var create int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the instance and keep it running until interrupted",
		Long: `Start the PostgreSQL instance, optionally create databases, and serve
/metrics and /healthz on metrics.listen. Catalogued databases are reaped on
reaper.schedule. The instance is stopped on SIGINT, SIGTERM or SIGQUIT.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if create < 0 {
				return fmt.Errorf("--create must not be negative, got %d", create)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			signal.Ignore(syscall.SIGHUP)

			return a.serve(ctx, cmd.OutOrStdout(), create)
		},
	}

	cmd.Flags().IntVar(&create, "create", 0, "number of databases to create after start; their URIs are printed as JSON lines")
	return cmd
}

func (a *app) serve(ctx context.Context, out io.Writer, create int) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sys, closeSystem, err := a.openSystem(ctx, reg)
	if err != nil {
		return err
	}
	defer func() {
		a.logger.Info("stopping instance")
		if cerr := closeSystem(); cerr != nil && err == nil {
			err = fmt.Errorf("close system: %w", cerr)
		}
	}()

	if err := sys.Start(ctx); err != nil {
		return fmt.Errorf("start instance: %w", err)
	}
	a.logger.Info("instance started")

	if err := createDatabases(ctx, sys, create, out); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Metrics.Listen; addr != "" {
		g.Go(func() error {
			return serveHTTP(gctx, addr, newMux(sys, reg), a.logger)
		})
	}
	if schedule := a.cfg.Reaper.Schedule; schedule != "" {
		s := reaper.NewScheduler(sys, schedule, a.cfg.Reaper.MaxAge, a.logger.With("component", "reaper"))
		g.Go(func() error {
			return s.Run(gctx)
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sys.Done():
			return fmt.Errorf("system exited: %w", pgenv.ErrActorClosed)
		}
		return nil
	})

	a.logger.Info("serving; interrupt to stop")
	return g.Wait()
}

type createdDatabase struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// createDatabases creates n databases concurrently and writes one JSON line
// per database to out.
func createDatabases(ctx context.Context, sys pgenv.System, n int, out io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(out)

	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			db, err := sys.CreateDatabase(gctx, "")
			if err != nil {
				return fmt.Errorf("create database: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			return enc.Encode(createdDatabase{Name: db.Name, URI: db.URI})
		})
	}
	return g.Wait()
}
