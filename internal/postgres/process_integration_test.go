//go:build integration

package postgres

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/giantswarm/pgenv/internal/netutil"
	"github.com/giantswarm/pgenv/internal/pgsql"
)

func TestEngine_Lifecycle(t *testing.T) {
	if _, err := exec.LookPath("initdb"); err != nil {
		t.Skip("initdb not in PATH")
	}

	port, err := netutil.NewPortRegistry(nil).AllocatePort()
	if err != nil {
		t.Fatalf("AllocatePort: %v", err)
	}
	s := testSettings(t)
	s.Port = port

	e, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := e.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pgsql.Ping(ctx, e.URI()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(s.DataDir()); !os.IsNotExist(err) {
		t.Fatalf("data directory not removed: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	// Restart re-initializes the removed cluster.
	if err := e.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}
