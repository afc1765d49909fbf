package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/pgenv/internal/catalog"
	"github.com/giantswarm/pgenv/internal/engine"
	"github.com/giantswarm/pgenv/internal/netutil"
	"github.com/giantswarm/pgenv/internal/pgsql"
)

var (
	_ engine.Engine = (*fakeEngine)(nil)
	_ SQLClient     = (*fakeSQL)(nil)
	_ Migrator      = (*fakeMigrator)(nil)
	_ Catalog       = (*fakeCatalog)(nil)
)

// fakeEngine counts lifecycle calls and fails on demand.
type fakeEngine struct {
	mu         sync.Mutex
	uri        string
	setupCalls int
	startCalls int
	stopCalls  int
	setupErr   error
	startErr   error
	stopErr    error
	settings   engine.Settings
}

func (e *fakeEngine) Setup(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setupCalls++
	return e.setupErr
}

func (e *fakeEngine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startCalls++
	return e.startErr
}

func (e *fakeEngine) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCalls++
	return e.stopErr
}

func (e *fakeEngine) URI() string { return e.uri }

func (e *fakeEngine) calls() (setup, start, stop int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setupCalls, e.startCalls, e.stopCalls
}

func (e *fakeEngine) setErrs(setup, start, stop error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setupErr, e.startErr, e.stopErr = setup, start, stop
}

// fakeSQL keeps databases in memory.
type fakeSQL struct {
	mu        sync.Mutex
	dbs       map[string]bool
	executed  []string // "uri|statement"
	createErr error
	dropErr   error
	fetchErr  error
	closed    int
	gate      chan struct{} // when set, CreateDatabase waits on it
	entered   chan struct{} // signalled before waiting on gate
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{dbs: make(map[string]bool)}
}

func (s *fakeSQL) FetchAll(_ context.Context, uri, statement string) ([]pgsql.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	s.executed = append(s.executed, uri+"|"+statement)
	return []pgsql.Row{{"uri": uri, "statement": statement}}, nil
}

func (s *fakeSQL) DatabaseExists(_ context.Context, _, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbs[name] || pgsql.IsSystemDatabase(name), nil
}

func (s *fakeSQL) CreateDatabase(_ context.Context, _, name string) error {
	if s.gate != nil {
		if s.entered != nil {
			s.entered <- struct{}{}
		}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if s.dbs[name] {
		return fmt.Errorf("%w: %s", pgsql.ErrDuplicateDatabase, name)
	}
	s.dbs[name] = true
	return nil
}

func (s *fakeSQL) DropDatabase(_ context.Context, _, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropErr != nil {
		return s.dropErr
	}
	if !s.dbs[name] {
		return fmt.Errorf("%w: %s", pgsql.ErrNoSuchDatabase, name)
	}
	delete(s.dbs, name)
	return nil
}

func (s *fakeSQL) ListDatabases(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.dbs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *fakeSQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSQL) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbs[name]
}

func (s *fakeSQL) statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.executed)
}

// fakeMigrator records calls.
type fakeMigrator struct {
	mu    sync.Mutex
	calls []string // "uri|database|source"
	err   error
	n     int
}

func (m *fakeMigrator) Migrate(_ context.Context, uri, database, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, strings.Join([]string{uri, database, source}, "|"))
	return m.n, m.err
}

// fakeCatalog is an in-memory ledger with a settable clock.
type fakeCatalog struct {
	mu      sync.Mutex
	entries map[string]catalog.Entry
	now     time.Time
	closed  bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entries: make(map[string]catalog.Entry), now: time.Now()}
}

func (c *fakeCatalog) Record(_ context.Context, server, name, uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[server+"/"+name] = catalog.Entry{Server: server, Name: name, URI: uri, CreatedAt: c.now}
	return nil
}

func (c *fakeCatalog) Forget(_ context.Context, server, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, server+"/"+name)
	return nil
}

func (c *fakeCatalog) OlderThan(_ context.Context, server string, cutoff time.Time) ([]catalog.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []catalog.Entry
	for _, e := range c.entries {
		if e.Server == server && e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b catalog.Entry) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (c *fakeCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCatalog) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.entries {
		out = append(out, e.Name)
	}
	slices.Sort(out)
	return out
}

func (c *fakeCatalog) setNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fixture bundles a local handle with its fakes.
type fixture struct {
	handle   *Handle
	engine   *fakeEngine
	sql      *fakeSQL
	migrator *fakeMigrator
	catalog  *fakeCatalog
	ports    *netutil.PortRegistry
}

func testLocalTarget(t *testing.T) LocalTarget {
	t.Helper()
	return LocalTarget{
		DataDir:      t.TempDir(),
		Username:     "postgres",
		Password:     "postgres",
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
	}
}

// newFixture builds a local handle backed by fakes. modify may adjust the
// target before the handle is built.
func newFixture(t *testing.T, modify func(*LocalTarget)) *fixture {
	t.Helper()
	target := testLocalTarget(t)
	if modify != nil {
		modify(&target)
	}
	f := &fixture{
		engine:   &fakeEngine{},
		sql:      newFakeSQL(),
		migrator: &fakeMigrator{},
		catalog:  newFakeCatalog(),
		ports:    netutil.NewPortRegistry(nil),
	}
	h, err := NewHandle(HandleParams{
		Target: target,
		Ports:  f.ports,
		Engines: func(s engine.Settings) (engine.Engine, error) {
			f.engine.settings = s
			f.engine.uri = s.URI()
			return f.engine, nil
		},
		SQL:      f.sql,
		Migrator: f.migrator,
		Catalog:  f.catalog,
	})
	if err != nil {
		t.Fatalf("NewHandle() error: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	f.handle = h
	return f
}

// newFixtureActor wraps the fixture in a running actor and closes it at
// cleanup.
func newFixtureActor(t *testing.T, f *fixture, cfg ActorConfig) *Actor {
	t.Helper()
	a := NewActor(NewManager(f.handle), cfg)
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = a.Send(context.Background(), Close{}, nil)
		<-runDone
	})
	return a
}
