package process

import (
	"time"
)

// Stoppable is a supervised process that can be stopped and closed.
type Stoppable interface {
	Stop(timeout time.Duration) error
	Close()
}

// StopCloseAndNil stops *p, closes it and sets *p to nil. Close and the nil
// assignment happen even when Stop fails; the Stop error is returned. A nil p
// or *p is a no-op.
//
// P is constrained to pointer types implementing Stoppable so the nil check
// needs no reflection; E is inferred.
//
//	var proc *postgres.Process
//	err := process.StopCloseAndNil(&proc, 10*time.Second)
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, timeout time.Duration) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(timeout)
}
