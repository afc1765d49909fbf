package core

import (
	"sync"
	"time"
)

// Completion receives the outcome of a request. It is invoked exactly once,
// from the actor goroutine or, on delivery failure, from the sender.
// It must not block.
type Completion func(value any, err error)

// envelope pairs a request with its completion.
type envelope struct {
	req      Request
	done     Completion
	once     sync.Once
	enqueued time.Time
}

func newEnvelope(req Request, done Completion) *envelope {
	return &envelope{req: req, done: done, enqueued: time.Now()}
}

// fulfill invokes the completion the first time it is called; later calls
// are ignored.
func (e *envelope) fulfill(value any, err error) {
	e.once.Do(func() {
		if e.done != nil {
			e.done(value, err)
		}
	})
}
