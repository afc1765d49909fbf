package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/giantswarm/pgenv/internal/metrics"
)

// DefaultQueueSize is the request channel capacity.
const DefaultQueueSize = 32

// ActorConfig configures an Actor.
type ActorConfig struct {
	// QueueSize is the request channel capacity. Senders block while it is
	// full. Zero means DefaultQueueSize.
	QueueSize int
	// OperationTimeout bounds each dequeued operation. Zero means no bound.
	OperationTimeout time.Duration
	Metrics          *metrics.Metrics
}

// Actor serializes every request for one Manager through a single
// goroutine. Requests are processed in arrival order, one at a time, each
// to completion. Producers talk to the actor through Send and Do only.
type Actor struct {
	manager   *Manager
	queue     chan *envelope
	done      chan struct{}
	started   atomic.Bool
	opTimeout time.Duration
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewActor creates an Actor owning m. Run must be called to process
// requests. Panics if m is nil or cfg is invalid.
func NewActor(m *Manager, cfg ActorConfig) *Actor {
	if m == nil {
		panic("pgenv: actor manager must not be nil")
	}
	if cfg.QueueSize < 0 {
		panic(fmt.Sprintf("pgenv: actor queue size must not be negative, got %d", cfg.QueueSize))
	}
	if cfg.OperationTimeout < 0 {
		panic(fmt.Sprintf("pgenv: operation timeout must not be negative, got %s", cfg.OperationTimeout))
	}
	size := cfg.QueueSize
	if size == 0 {
		size = DefaultQueueSize
	}
	return &Actor{
		manager:   m,
		queue:     make(chan *envelope, size),
		done:      make(chan struct{}),
		opTimeout: cfg.OperationTimeout,
		metrics:   cfg.Metrics,
		log:       m.log,
	}
}

// Done returns a channel closed once the actor has stopped the instance and
// exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Send enqueues req and arranges for done to be invoked exactly once with
// its outcome. Send blocks while the queue is full, until ctx ends or the
// actor exits.
//
// When the request cannot be delivered, done receives an error wrapping
// ErrNotDelivered and either ErrActorClosed or the context error, and Send
// returns the same error. ctx only governs delivery: once enqueued, the
// request runs to completion regardless of ctx.
func (a *Actor) Send(ctx context.Context, req Request, done Completion) error {
	if req == nil {
		panic("pgenv: request must not be nil")
	}
	env := newEnvelope(req, done)

	select {
	case <-a.done:
		return a.undeliverable(env, ErrActorClosed)
	default:
	}
	if err := ctx.Err(); err != nil {
		return a.undeliverable(env, err)
	}

	select {
	case a.queue <- env:
		a.metrics.SetQueueDepth(len(a.queue))
		// The actor may have exited between the check above and the send;
		// its final drain could have missed env.
		select {
		case <-a.done:
			a.drainPending()
		default:
		}
		return nil
	case <-a.done:
		return a.undeliverable(env, ErrActorClosed)
	case <-ctx.Done():
		return a.undeliverable(env, ctx.Err())
	}
}

func (a *Actor) undeliverable(env *envelope, cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrNotDelivered, env.req.Op(), cause)
	a.metrics.DeliveryFailed(string(env.req.Op()))
	env.fulfill(nil, err)
	return err
}

// Do sends req and waits for its outcome. Cancelling ctx abandons the wait
// but not an enqueued request.
func (a *Actor) Do(ctx context.Context, req Request) (any, error) {
	type result struct {
		value any
		err   error
	}
	ch := make(chan result, 1)
	if err := a.Send(ctx, req, func(v any, err error) {
		ch <- result{v, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", req.Op(), ctx.Err())
	}
}

// Run processes requests until a Close request is handled or ctx is
// cancelled; cancellation counts as a Close. On exit every request still
// queued, or sent later, fails with ErrActorClosed. Run returns the error of
// the final stop. Panics when called twice.
func (a *Actor) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		panic("pgenv: actor already running")
	}
	defer func() {
		close(a.done)
		a.drainPending()
		a.metrics.SetQueueDepth(0)
	}()

	a.log.Debug("actor started", "queue_size", cap(a.queue))
	for {
		select {
		case env := <-a.queue:
			a.metrics.SetQueueDepth(len(a.queue))
			if _, ok := env.req.(Close); ok {
				err := a.process(ctx, env)
				a.log.Info("actor closed")
				return err
			}
			a.process(ctx, env)

		case <-ctx.Done():
			a.log.Info("shutdown signal received; closing instance")
			err := a.manager.Close(context.WithoutCancel(ctx))
			a.metrics.SetRunning(false)
			return err
		}
	}
}

// process runs one request to completion and fulfills its envelope. The
// operation context is detached from ctx so a shutdown signal never
// interrupts an operation halfway.
func (a *Actor) process(ctx context.Context, env *envelope) error {
	opCtx := context.WithoutCancel(ctx)
	if a.opTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(opCtx, a.opTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := a.apply(opCtx, env.req)
	elapsed := time.Since(start)

	op := env.req.Op()
	a.metrics.ObserveRequest(string(op), err, elapsed)
	a.metrics.SetRunning(a.manager.Running())
	if err != nil {
		a.log.Debug("request failed", "op", op, "elapsed", elapsed, "error", err)
	} else {
		a.log.Debug("request done", "op", op, "elapsed", elapsed, "queued", start.Sub(env.enqueued))
	}
	env.fulfill(value, err)
	return err
}

// apply runs req, converting a panic into an error for that request.
func (a *Actor) apply(ctx context.Context, req Request) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("request panicked", "op", req.Op(), "panic", r)
			value, err = nil, fmt.Errorf("%s: panic: %v", req.Op(), r)
		}
	}()
	return req.apply(ctx, a.manager)
}

// drainPending fails every queued envelope with ErrActorClosed. It never
// blocks and is safe to call from several goroutines.
func (a *Actor) drainPending() {
	for {
		select {
		case env := <-a.queue:
			a.undeliverable(env, ErrActorClosed)
		default:
			return
		}
	}
}
