package pgenv

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/giantswarm/pgenv/internal/core"
)

// systemConfig holds configuration for a System. This unexported type wraps
// core.SystemConfig via embedding, keeping internal/core types out of the
// public API signature. The target is assembled from remoteURI and local
// when the core configuration is built.
type systemConfig struct {
	core.SystemConfig

	remoteURI string
	local     core.LocalTarget
}

// defaultSystemConfig returns a systemConfig populated with all default
// values.
func defaultSystemConfig() systemConfig {
	return systemConfig{
		SystemConfig: core.SystemConfig{
			RootPath:  filepath.Join(os.TempDir(), DefaultRootDirName),
			QueueSize: DefaultQueueSize,
			Catalog:   true,
		},
		local: core.LocalTarget{
			Username:     DefaultUsername,
			Password:     DefaultPassword,
			StartTimeout: DefaultStartTimeout,
			StopTimeout:  DefaultStopTimeout,
			DownloadHost: DefaultDownloadHost,
		},
	}
}

// toCoreConfig returns the core configuration with the target selected by
// the options. A local engine keeps its data under RootPath.
func (c systemConfig) toCoreConfig() core.SystemConfig {
	cfg := c.SystemConfig
	if c.remoteURI != "" {
		cfg.Target = core.RemoteTarget{URI: c.remoteURI}
		return cfg
	}
	local := c.local
	local.DataDir = c.RootPath
	cfg.Target = local
	return cfg
}

// Validate reports every invalid field of the assembled configuration.
func (c systemConfig) Validate() error {
	if c.remoteURI != "" && c.local.BinariesPath != "" {
		return errors.Join(
			errors.New("binaries path cannot be combined with a remote target"),
			c.toCoreConfig().Validate(),
		)
	}
	return c.toCoreConfig().Validate()
}
