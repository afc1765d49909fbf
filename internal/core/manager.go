package core

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Manager owns one Handle and the running flag, and translates intents into
// ordered handle calls.
//
// Policies while the instance is not running:
//   - CreateDatabase starts it first.
//   - DropDatabase, Migrate, ExecuteSQL, ListDatabases, HasDatabase and Reap
//     succeed without doing anything.
//
// Manager is not safe for concurrent use; the Actor is its only caller.
type Manager struct {
	handle  *Handle
	running bool
	log     *slog.Logger
}

// NewManager creates a Manager owning h. Panics if h is nil.
func NewManager(h *Handle) *Manager {
	if h == nil {
		panic("pgenv: manager handle must not be nil")
	}
	return &Manager{handle: h, log: h.log}
}

// Handle returns the owned handle.
func (m *Manager) Handle() *Handle {
	return m.handle
}

// Running reports whether the instance is running.
func (m *Manager) Running() bool {
	return m.running
}

// Start starts the instance unless it is already running.
func (m *Manager) Start(ctx context.Context) error {
	if m.running {
		return nil
	}
	if _, err := m.handle.Start(ctx); err != nil {
		return err
	}
	m.running = true
	return nil
}

// Stop stops a running instance. The instance counts as stopped afterwards
// whether or not the engine reported an error; the error is logged and
// returned.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.running {
		return nil
	}
	_, err := m.handle.Stop(ctx)
	m.running = false
	if err != nil {
		m.log.Error("stop instance", "error", err)
		return err
	}
	return nil
}

// CreateDatabase starts the instance when needed and creates a database.
func (m *Manager) CreateDatabase(ctx context.Context, name string) (LogicalDatabase, error) {
	if err := m.Start(ctx); err != nil {
		return LogicalDatabase{}, err
	}
	return m.handle.CreateDatabase(ctx, name)
}

// DropDatabase drops database name. It is a no-op when not running.
func (m *Manager) DropDatabase(ctx context.Context, name string) error {
	if !m.running {
		return nil
	}
	return m.handle.DropDatabase(ctx, name)
}

// Migrate applies source to database name. It is a no-op when not running.
func (m *Manager) Migrate(ctx context.Context, name, source string) (int, error) {
	if !m.running {
		return 0, nil
	}
	return m.handle.Migrate(ctx, name, source)
}

// ExecuteSQL runs statement. It returns no rows when not running.
func (m *Manager) ExecuteSQL(ctx context.Context, name, statement string) ([]Row, error) {
	if !m.running {
		return nil, nil
	}
	return m.handle.ExecuteSQL(ctx, name, statement)
}

// ListDatabases returns the logical databases, none when not running.
func (m *Manager) ListDatabases(ctx context.Context) ([]string, error) {
	if !m.running {
		return nil, nil
	}
	return m.handle.ListDatabases(ctx)
}

// HasDatabase reports whether name exists; false when not running.
func (m *Manager) HasDatabase(ctx context.Context, name string) (bool, error) {
	if !m.running {
		return false, nil
	}
	return m.handle.HasDatabase(ctx, name)
}

// Reap drops catalogued databases older than maxAge. It is a no-op when not
// running.
func (m *Manager) Reap(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if !m.running {
		return nil, nil
	}
	return m.handle.Reap(ctx, maxAge)
}

// Close stops the instance and releases the handle.
func (m *Manager) Close(ctx context.Context) error {
	stopErr := m.Stop(ctx)
	return errors.Join(stopErr, m.handle.Close(ctx))
}
