package pgenv

import (
	"context"
	"time"

	"github.com/giantswarm/pgenv/internal/core"
	"github.com/giantswarm/pgenv/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// ConfigSnapshot holds a copy of systemConfig fields for test assertions.
// Exported only via export_test.go so that the _test package can verify
// option closures actually mutate the config without accessing internals.
type ConfigSnapshot struct {
	RemoteURI        string
	RootPath         string
	Port             int
	Username         string
	Password         string
	Persistent       bool
	StartTimeout     time.Duration
	StopTimeout      time.Duration
	DownloadHost     string
	Version          string
	BinariesPath     string
	QueueSize        int
	OperationTimeout time.Duration
	Catalog          bool
	Registerer       prometheus.Registerer
	Target           core.Target
}

// ApplyOptionsForTesting creates a default systemConfig, applies the given
// options, and returns a ConfigSnapshot of the result.
func ApplyOptionsForTesting(opts ...Option) ConfigSnapshot {
	cfg := defaultSystemConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		RemoteURI:        cfg.remoteURI,
		RootPath:         cfg.RootPath,
		Port:             cfg.local.Port,
		Username:         cfg.local.Username,
		Password:         cfg.local.Password,
		Persistent:       cfg.local.Persistent,
		StartTimeout:     cfg.local.StartTimeout,
		StopTimeout:      cfg.local.StopTimeout,
		DownloadHost:     cfg.local.DownloadHost,
		Version:          cfg.local.Version,
		BinariesPath:     cfg.local.BinariesPath,
		QueueSize:        cfg.QueueSize,
		OperationTimeout: cfg.OperationTimeout,
		Catalog:          cfg.Catalog,
		Registerer:       cfg.Registerer,
		Target:           cfg.toCoreConfig().Target,
	}
}

// NewWithEnginesForTesting is New with the engine factory replaced.
//
//nolint:ireturn // Mirrors New.
func NewWithEnginesForTesting(ctx context.Context, engines engine.Factory, opts ...Option) (System, error) {
	cfg := defaultSystemConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Engines = engines
	return newSystem(ctx, cfg)
}
