package pgenv

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/pgenv/internal/core"
)

// Compile-time interface satisfaction check.
var _ System = (*systemWrapper)(nil)

// systemWrapper implements System on top of core.Actor.
//
// The actor is stored as a named (unexported) field rather than embedded so
// callers cannot reach the manager or handle through type assertions.
type systemWrapper struct {
	actor *core.Actor
}

// New assembles a System and starts its actor goroutine. No engine is
// started; call Start, or let the first CreateDatabase start it.
//
// ctx is the lifetime of the System: when it is cancelled, the instance is
// stopped and the actor exits, exactly as if Close had been requested. Pass
// a context that outlives every use, such as one cancelled by a shutdown
// signal.
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
//
//nolint:ireturn // Returns System interface by design for testability (mockable).
func New(ctx context.Context, opts ...Option) (System, error) {
	cfg := defaultSystemConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newSystem(ctx, cfg)
}

func newSystem(ctx context.Context, cfg systemConfig) (*systemWrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	actor, err := core.NewSystem(ctx, cfg.toCoreConfig())
	if err != nil {
		return nil, err
	}
	go func() {
		if err := actor.Run(ctx); err != nil {
			core.Logger().Error("instance shutdown failed", "error", err)
		}
	}()
	return &systemWrapper{actor: actor}, nil
}

func (s *systemWrapper) Start(ctx context.Context) error {
	_, err := s.actor.Do(ctx, core.Start{})
	return err
}

func (s *systemWrapper) Stop(ctx context.Context) error {
	_, err := s.actor.Do(ctx, core.Stop{})
	return err
}

func (s *systemWrapper) CreateDatabase(ctx context.Context, name string) (Database, error) {
	v, err := s.actor.Do(ctx, core.CreateDatabase{Name: name})
	if err != nil {
		return Database{}, err
	}
	return v.(Database), nil
}

func (s *systemWrapper) DropDatabase(ctx context.Context, name string) error {
	_, err := s.actor.Do(ctx, core.DropDatabase{Name: name})
	return err
}

func (s *systemWrapper) Migrate(ctx context.Context, database, source string) (int, error) {
	v, err := s.actor.Do(ctx, core.Migrate{Database: database, Source: source})
	n, _ := v.(int)
	return n, err
}

func (s *systemWrapper) ExecuteSQL(ctx context.Context, database, statement string) ([]Row, error) {
	v, err := s.actor.Do(ctx, core.ExecuteSQL{Database: database, Statement: statement})
	if err != nil {
		return nil, err
	}
	rows, _ := v.([]Row)
	return rows, nil
}

func (s *systemWrapper) ListDatabases(ctx context.Context) ([]string, error) {
	v, err := s.actor.Do(ctx, core.ListDatabases{})
	if err != nil {
		return nil, err
	}
	names, _ := v.([]string)
	return names, nil
}

func (s *systemWrapper) HasDatabase(ctx context.Context, name string) (bool, error) {
	v, err := s.actor.Do(ctx, core.HasDatabase{Name: name})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *systemWrapper) Reap(ctx context.Context, maxAge time.Duration) ([]string, error) {
	v, err := s.actor.Do(ctx, core.Reap{MaxAge: maxAge})
	if err != nil {
		return nil, err
	}
	names, _ := v.([]string)
	return names, nil
}

func (s *systemWrapper) Running(ctx context.Context) (bool, error) {
	v, err := s.actor.Do(ctx, core.Status{})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *systemWrapper) Send(ctx context.Context, req Request, done Completion) error {
	return s.actor.Send(ctx, req, done)
}

func (s *systemWrapper) Do(ctx context.Context, req Request) (any, error) {
	return s.actor.Do(ctx, req)
}

// Close sends a Close request and waits for the actor to exit.
func (s *systemWrapper) Close(ctx context.Context) error {
	_, err := s.actor.Do(ctx, core.Close{})
	if err != nil {
		return err
	}
	select {
	case <-s.actor.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for shutdown: %w", ctx.Err())
	}
}

func (s *systemWrapper) Done() <-chan struct{} {
	return s.actor.Done()
}
