package reaper

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/pgenv/internal/core"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []core.Request
	dropped  []string
	err      error
	called   chan struct{}
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{called: make(chan struct{}, 16)}
}

func (f *fakeSubmitter) Do(_ context.Context, req core.Request) (any, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	dropped, err := f.dropped, f.err
	f.mu.Unlock()

	select {
	case f.called <- struct{}{}:
	default:
	}
	if err != nil {
		return nil, err
	}
	return dropped, nil
}

func TestNewScheduler_NilSubmitterPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewScheduler(nil, "@hourly", time.Hour, nil)
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		dropped []string
		err     error
	}{
		"dropped":  {dropped: []string{"db_a", "db_b"}},
		"nothing":  {},
		"rejected": {err: core.ErrActorClosed},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFakeSubmitter()
			f.dropped, f.err = tc.dropped, tc.err
			s := NewScheduler(f, "@hourly", 30*time.Minute, nil)

			got, err := s.RunNow(context.Background())
			if !errors.Is(err, tc.err) {
				t.Fatalf("RunNow() error = %v, want %v", err, tc.err)
			}
			if !slices.Equal(got, tc.dropped) {
				t.Errorf("RunNow() = %v, want %v", got, tc.dropped)
			}
			if len(f.requests) != 1 || f.requests[0] != (core.Reap{MaxAge: 30 * time.Minute}) {
				t.Errorf("requests = %#v", f.requests)
			}
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	f := newFakeSubmitter()
	s := NewScheduler(f, "@hourly", time.Hour, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if next := s.NextRun(); next.Before(time.Now()) || next.After(time.Now().Add(time.Hour+time.Minute)) {
		t.Errorf("NextRun() = %v", next)
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(newFakeSubmitter(), "every tuesday", time.Hour, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid schedule succeeded")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after failed Start")
	}
}

func TestScheduler_RunSubmitsOnSchedule(t *testing.T) {
	t.Parallel()

	f := newFakeSubmitter()
	f.dropped = []string{"db_old"}
	s := NewScheduler(f, "@every 1s", time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	select {
	case <-f.called:
	case <-time.After(5 * time.Second):
		t.Fatal("no reap submitted within 5s")
	}
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Run returned")
	}
}
