package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/pgenv"
)

// withSystem starts a system, runs fn against it and closes it.
func (a *app) withSystem(ctx context.Context, fn func(pgenv.System) error) (err error) {
	sys, closeSystem, err := a.openSystem(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeSystem(); cerr != nil && err == nil {
			err = fmt.Errorf("close system: %w", cerr)
		}
	}()

	if err := sys.Start(ctx); err != nil {
		return fmt.Errorf("start instance: %w", err)
	}
	return fn(sys)
}

func execCmd(a *app) *cobra.Command {
	var (
		database string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "exec [statement]",
		Short: "Run SQL and print the resulting rows as JSON",
		Long: `Run a statement against a database, or the maintenance database when
--database is empty. The statement is taken from the argument, --file, or
standard input, in that order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement, err := readStatement(args, file, cmd.InOrStdin(), stdinIsPipe())
			if err != nil {
				return err
			}
			return a.withSystem(cmd.Context(), func(sys pgenv.System) error {
				rows, err := sys.ExecuteSQL(cmd.Context(), database, statement)
				if err != nil {
					return err
				}
				return writeRows(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringVarP(&database, "database", "d", "", "target database (default: maintenance database)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the statement from a file")
	return cmd
}

// readStatement picks the statement from args, file or in.
func readStatement(args []string, file string, in io.Reader, piped bool) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", errors.New("pass either a statement or --file, not both")
	case len(args) == 1:
		return nonEmpty(args[0])
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read statement file: %w", err)
		}
		return nonEmpty(string(data))
	case piped:
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read statement from stdin: %w", err)
		}
		return nonEmpty(string(data))
	}
	return "", errors.New("no statement given")
}

func nonEmpty(statement string) (string, error) {
	if strings.TrimSpace(statement) == "" {
		return "", errors.New("statement is empty")
	}
	return statement, nil
}

// writeRows prints one JSON object per row.
func writeRows(w io.Writer, rows []pgenv.Row) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	return nil
}

func migrateCmd(a *app) *cobra.Command {
	var (
		database string
		create   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate <dir>",
		Short: "Apply a migration directory to a database",
		Long: `Apply the migrations of a directory (<version>_<name>.sql or .up.sql) in
version order. With --create the database is created first; an empty
--database then generates a name. The database URI and applied count are printed as JSON.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(*cobra.Command, []string) error {
			if database == "" && !create {
				return errors.New("--database is required unless --create is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if fi, err := os.Stat(source); err != nil {
				return fmt.Errorf("migration source: %w", err)
			} else if !fi.IsDir() {
				return fmt.Errorf("migration source %s is not a directory", source)
			}

			return a.withSystem(cmd.Context(), func(sys pgenv.System) error {
				ctx := cmd.Context()
				result := migrateResult{Name: database}
				if create {
					db, err := sys.CreateDatabase(ctx, database)
					if err != nil {
						return err
					}
					result.Name, result.URI = db.Name, db.URI
				}
				applied, err := sys.Migrate(ctx, result.Name, source)
				if err != nil {
					return err
				}
				result.Applied = applied
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			})
		},
	}

	cmd.Flags().StringVarP(&database, "database", "d", "", "target database")
	cmd.Flags().BoolVar(&create, "create", false, "create the database before migrating")
	return cmd
}

type migrateResult struct {
	Name    string `json:"name"`
	URI     string `json:"uri,omitempty"`
	Applied int    `json:"applied"`
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the non-system databases of the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSystem(cmd.Context(), func(sys pgenv.System) error {
				names, err := sys.ListDatabases(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func reapCmd(a *app) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Drop catalogued databases older than --max-age",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if !a.cfg.Catalog.Enabled {
				return errors.New("reap requires the catalog to be enabled")
			}
			if maxAge == 0 {
				maxAge = a.cfg.Reaper.MaxAge
			}
			if maxAge < 0 {
				return fmt.Errorf("--max-age must not be negative, got %s", maxAge)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSystem(cmd.Context(), func(sys pgenv.System) error {
				dropped, err := sys.Reap(cmd.Context(), maxAge)
				if err != nil {
					return err
				}
				a.logger.Info("reap finished", "dropped", len(dropped), "max_age", maxAge)
				for _, name := range dropped {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "minimum age of a reaped database (default: reaper.max_age)")
	return cmd
}

// stdinIsPipe reports whether statements can be read from standard input.
func stdinIsPipe() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice == 0
}
