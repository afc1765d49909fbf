package netutil

import (
	"errors"
	"sync"
	"testing"
)

func TestPortRegistry_Claim(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup   func(r *PortRegistry)
		port    int
		wantErr error
		anyErr  bool
	}{
		"free port": {
			setup: func(_ *PortRegistry) {},
			port:  5433,
		},
		"claimed twice": {
			setup:   func(r *PortRegistry) { r.reserve(5433) },
			port:    5433,
			wantErr: ErrPortClaimed,
		},
		"zero": {
			setup:  func(_ *PortRegistry) {},
			port:   0,
			anyErr: true,
		},
		"above range": {
			setup:  func(_ *PortRegistry) {},
			port:   70000,
			anyErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := NewPortRegistry(nil)
			tc.setup(r)

			err := r.Claim(tc.port)
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Claim(%d) error = %v, want %v", tc.port, err, tc.wantErr)
				}
			case tc.anyErr:
				if err == nil {
					t.Fatalf("Claim(%d) expected error", tc.port)
				}
			default:
				if err != nil {
					t.Fatalf("Claim(%d) unexpected error: %v", tc.port, err)
				}
				if r.reserve(tc.port) {
					t.Errorf("port %d should be held after Claim", tc.port)
				}
			}
		})
	}
}

func TestPortRegistry_ReleaseMakesPortAvailable(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	if err := r.Claim(6000); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	r.Release(6000)
	if err := r.Claim(6000); err != nil {
		t.Fatalf("Claim after Release: %v", err)
	}
	// Releasing an unknown port is harmless.
	r.Release(6001)
}

func TestPortRegistry_AllocatePort(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	seen := make(map[int]bool)
	for i := range 5 {
		port, err := r.AllocatePort()
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
		if port <= 0 {
			t.Fatalf("allocation %d: invalid port %d", i, port)
		}
		if seen[port] {
			t.Fatalf("allocation %d: port %d handed out twice", i, port)
		}
		seen[port] = true
		if !errors.Is(r.Claim(port), ErrPortClaimed) {
			t.Errorf("allocated port %d is not registered", port)
		}
	}
}

func TestPortRegistry_ConcurrentAllocate(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	const goroutines = 20

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ports = make(map[int]int)
	)
	for range goroutines {
		wg.Go(func() {
			port, err := r.AllocatePort()
			if err != nil {
				t.Errorf("AllocatePort: %v", err)
				return
			}
			mu.Lock()
			ports[port]++
			mu.Unlock()
		})
	}
	wg.Wait()

	for port, n := range ports {
		if n != 1 {
			t.Errorf("port %d allocated %d times", port, n)
		}
	}
}
