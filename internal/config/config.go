// Package config loads the pgenv command configuration from a YAML file and
// PGENV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/pgenv"
	"github.com/giantswarm/pgenv/internal/pgsql"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PGENV_"

// Database types.
const (
	TypeEmbedded = "Embedded"
	TypeExternal = "External"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Actor    ActorConfig    `yaml:"actor"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Reaper   ReaperConfig   `yaml:"reaper"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Type         string        `yaml:"db_type"`
	URI          string        `yaml:"uri"` // External only
	RootPath     string        `yaml:"root_path"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Persistent   bool          `yaml:"persistent"`
	Port         int           `yaml:"port"` // 0 picks a free port
	Timeout      time.Duration `yaml:"timeout"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	Host         string        `yaml:"host"`
	Version      string        `yaml:"version"` // empty uses the engine default
	BinariesPath string        `yaml:"binaries_path"`
}

// IsExternal reports whether the configuration targets an existing server.
func (d DatabaseConfig) IsExternal() bool {
	return strings.EqualFold(d.Type, TypeExternal)
}

type ActorConfig struct {
	QueueSize        int           `yaml:"queue_size"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

type CatalogConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ReaperConfig struct {
	Schedule string        `yaml:"schedule"` // cron expression, empty disables
	MaxAge   time.Duration `yaml:"max_age"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel returns the configured level. Validate rejects unknown names.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns the configuration used when neither file nor environment
// set a value.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:        TypeEmbedded,
			RootPath:    filepath.Join(os.TempDir(), pgenv.DefaultRootDirName),
			Username:    pgenv.DefaultUsername,
			Password:    pgenv.DefaultPassword,
			Timeout:     pgenv.DefaultStartTimeout,
			StopTimeout: pgenv.DefaultStopTimeout,
			Host:        pgenv.DefaultDownloadHost,
		},
		Actor: ActorConfig{
			QueueSize: pgenv.DefaultQueueSize,
		},
		Catalog: CatalogConfig{Enabled: true},
		Reaper:  ReaperConfig{MaxAge: pgenv.DefaultReapMaxAge},
		Log:     LogConfig{Level: "info", Format: FormatText},
	}
}

// Load reads the file at configPath, when set, over the defaults, applies
// environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadFromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// loadFromEnv applies PGENV_<KEY> overrides. Unparseable values are
// reported rather than ignored.
func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	parse := func(key string, set func(string) error) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		if err := set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		}
	}
	integer := func(key string, dst *int) {
		parse(key, func(v string) (err error) {
			*dst, err = strconv.Atoi(v)
			return err
		})
	}
	duration := func(key string, dst *time.Duration) {
		parse(key, func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		})
	}
	boolean := func(key string, dst *bool) {
		parse(key, func(v string) (err error) {
			*dst, err = strconv.ParseBool(v)
			return err
		})
	}

	str("DB_TYPE", &c.Database.Type)
	str("URI", &c.Database.URI)
	str("ROOT_PATH", &c.Database.RootPath)
	str("USERNAME", &c.Database.Username)
	str("PASSWORD", &c.Database.Password)
	boolean("PERSISTENT", &c.Database.Persistent)
	integer("PORT", &c.Database.Port)
	duration("TIMEOUT", &c.Database.Timeout)
	duration("STOP_TIMEOUT", &c.Database.StopTimeout)
	str("HOST", &c.Database.Host)
	str("VERSION", &c.Database.Version)
	str("BINARIES_PATH", &c.Database.BinariesPath)

	integer("QUEUE_SIZE", &c.Actor.QueueSize)
	duration("OPERATION_TIMEOUT", &c.Actor.OperationTimeout)

	boolean("CATALOG_ENABLED", &c.Catalog.Enabled)

	str("REAPER_SCHEDULE", &c.Reaper.Schedule)
	duration("REAPER_MAX_AGE", &c.Reaper.MaxAge)

	str("METRICS_LISTEN", &c.Metrics.Listen)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Database.IsExternal():
		if c.Database.URI == "" {
			errs = append(errs, errors.New("database uri is required for an External database"))
		} else if _, err := pgsql.ParseServerURI(c.Database.URI); err != nil {
			errs = append(errs, err)
		}
	case strings.EqualFold(c.Database.Type, TypeEmbedded):
		if c.Database.Username == "" {
			errs = append(errs, errors.New("database username must not be empty"))
		}
		if c.Database.Port < 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Errorf("database port must be in 0..65535, got %d", c.Database.Port))
		}
		if c.Database.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("database timeout must be greater than 0, got %s", c.Database.Timeout))
		}
		if c.Database.StopTimeout <= 0 {
			errs = append(errs, fmt.Errorf("database stop timeout must be greater than 0, got %s", c.Database.StopTimeout))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database type %q (supported: %s, %s)",
			c.Database.Type, TypeEmbedded, TypeExternal))
	}
	if c.Database.RootPath == "" {
		errs = append(errs, errors.New("database root path must not be empty"))
	}

	if c.Actor.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("actor queue size must be greater than 0, got %d", c.Actor.QueueSize))
	}
	if c.Actor.OperationTimeout < 0 {
		errs = append(errs, fmt.Errorf("actor operation timeout must not be negative, got %s", c.Actor.OperationTimeout))
	}

	if c.Reaper.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reaper.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("reaper schedule: %w", err))
		}
		if !c.Catalog.Enabled {
			errs = append(errs, errors.New("reaper requires the catalog to be enabled"))
		}
	}
	if c.Reaper.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("reaper max age must be greater than 0, got %s", c.Reaper.MaxAge))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Log.Format != FormatText && c.Log.Format != FormatJSON {
		errs = append(errs, fmt.Errorf("log format must be %q or %q, got %q", FormatText, FormatJSON, c.Log.Format))
	}

	return errors.Join(errs...)
}
