// Package reaper periodically drops catalogued databases that outlived
// their maximum age.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/giantswarm/pgenv/internal/core"
)

// Submitter runs a request through the lifecycle actor. *core.Actor
// implements it.
type Submitter interface {
	Do(ctx context.Context, req core.Request) (any, error)
}

// Scheduler submits Reap requests on a cron schedule. A run that is still
// in progress when the next one is due causes that one to be skipped.
type Scheduler struct {
	submitter Submitter
	cron      *cron.Cron
	schedule  string
	maxAge    time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	running bool
	nextRun time.Time
	entryID cron.EntryID
}

// NewScheduler creates a scheduler for schedule, a standard five-field cron
// expression or descriptor such as "@every 10m". A nil logger uses
// slog.Default().
func NewScheduler(s Submitter, schedule string, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	if s == nil {
		panic("pgenv: reaper submitter must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper")
	return &Scheduler{
		submitter: s,
		schedule:  schedule,
		maxAge:    maxAge,
		logger:    logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
	}
}

// Start registers the job and starts the cron loop. Starting a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runReap(ctx)
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.running = true
	s.entryID = entryID
	s.nextRun = s.cron.Entry(entryID).Next

	s.logger.Info("reaper started",
		"schedule", s.schedule,
		"max_age", s.maxAge,
		"next_run", s.nextRun,
	)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("reaper stopped")
}

// Run starts the scheduler, blocks until ctx ends and stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunNow submits one Reap request and returns the dropped databases.
func (s *Scheduler) RunNow(ctx context.Context) ([]string, error) {
	v, err := s.submitter.Do(ctx, core.Reap{MaxAge: s.maxAge})
	if err != nil {
		return nil, err
	}
	dropped, _ := v.([]string)
	return dropped, nil
}

// NextRun returns the time of the next scheduled run.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runReap(ctx context.Context) {
	dropped, err := s.RunNow(ctx)
	switch {
	case errors.Is(err, core.ErrActorClosed), errors.Is(err, context.Canceled):
		s.logger.Debug("reap skipped; shutting down", "error", err)
	case err != nil:
		s.logger.Error("scheduled reap failed", "error", err)
	case len(dropped) > 0:
		s.logger.Info("reaped databases", "count", len(dropped), "databases", dropped)
	default:
		s.logger.Debug("nothing to reap")
	}

	s.mu.Lock()
	s.nextRun = s.cron.Entry(s.entryID).Next
	s.mu.Unlock()
}
