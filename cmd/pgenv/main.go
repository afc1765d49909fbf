// Command pgenv runs a PostgreSQL instance and manages logical databases on
// it from the command line.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/pgenv"
	"github.com/giantswarm/pgenv/internal/config"
)

var version = "dev"

// app is the state shared by every subcommand once the configuration is
// loaded.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
	errOut io.Writer
}

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(errOut io.Writer) *cobra.Command {
	a := &app{errOut: errOut}

	rootCmd := &cobra.Command{
		Use:          "pgenv",
		Short:        "Disposable PostgreSQL databases for tests and local development",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file path")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json (overrides config)")

	rootCmd.AddCommand(
		serveCmd(a),
		execCmd(a),
		migrateCmd(a),
		listCmd(a),
		reapCmd(a),
	)
	return rootCmd
}

// load reads the configuration, applies the logging flags and installs the
// logger.
func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	a.cfg = cfg
	a.logger = newLogger(a.errOut, cfg.Log)
	pgenv.SetLogger(a.logger.With("component", "pgenv"))
	return nil
}

func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
