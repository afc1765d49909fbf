package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrPortClaimed is returned by Claim when the port is already held by
// another engine of this process.
const ErrPortClaimed = sentinel.Error("port already claimed")

// maxPortRetries bounds the number of kernel probes per allocation.
const maxPortRetries = 20

// PortRegistry tracks the ports held by engines of this process.
//
// The kernel may return a port that was handed out moments ago once the
// probing listener is closed; the registry closes that TOCTOU window between
// concurrent allocations.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates an empty registry. A nil logger uses slog.Default().
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Claim registers a caller-chosen port. It fails with ErrPortClaimed when
// the port is already held; it does not check whether another OS process
// listens on it.
func (r *PortRegistry) Claim(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("claim port %d: out of range", port)
	}
	if !r.reserve(port) {
		return fmt.Errorf("claim port %d: %w", port, ErrPortClaimed)
	}
	return nil
}

// Release returns a port to the pool.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// AllocatePort asks the kernel for a free loopback port that is not held by
// this registry and registers it. Call Release when the engine is gone.
func (r *PortRegistry) AllocatePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("resolve tcp address: %w", err)
	}

	for range maxPortRetries {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("listen on tcp address: %w", err)
		}
		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return 0, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		port := tcpAddr.Port
		reserved := r.reserve(port)
		if closeErr := l.Close(); closeErr != nil {
			r.log.Warn("close probe listener", "port", port, "error", closeErr)
		}
		if reserved {
			return port, nil
		}
		r.log.Debug("port already in registry, retrying", "port", port)
	}
	return 0, fmt.Errorf("allocate port: exhausted %d attempts", maxPortRetries)
}
