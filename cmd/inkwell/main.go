package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"inkwell/api/internal/config"
	"inkwell/api/internal/store"
)

var (
	envFile  string
	noDotenv bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inkwell",
		Short:         "Inkwell writing assistant API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotenv()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVar(&noDotenv, "no-dotenv", false, "skip loading the dotenv file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newUsersCmd())
	return root
}

// loadDotenv fills unset variables from envFile. A missing default file is
// not an error; a missing file named on the command line is.
func loadDotenv() error {
	if noDotenv || envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && envFile == ".env" {
			return nil
		}
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// newCLILogger is for one-shot admin commands.
func newCLILogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// openStore loads config, applying dbURL when set, and connects to Postgres.
func openStore(ctx context.Context, dbURL string) (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.Database)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return cfg, db, nil
}

// migrate applies pending migrations from cfg.MigrationsDir, or from the
// embedded set when it is empty.
func migrate(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) ([]string, error) {
	fsys, err := store.MigrationSource(cfg.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	applied, err := store.ApplyMigrations(ctx, db, fsys, logger)
	if err != nil {
		return applied, fmt.Errorf("migrations failed: %w", err)
	}
	return applied, nil
}

func newMigrateCmd() *cobra.Command {
	var (
		dbURL    string
		rollback int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newCLILogger()
			cfg, db, err := openStore(ctx, dbURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if rollback > 0 {
				fsys, err := store.MigrationSource(cfg.MigrationsDir)
				if err != nil {
					return fmt.Errorf("migrations source: %w", err)
				}
				reverted, err := store.RollbackMigrations(ctx, db, fsys, rollback, logger)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d migrations reverted\n", len(reverted))
				return nil
			}

			applied, err := migrate(ctx, cfg, db, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migrations applied\n", len(applied))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbURL, "db-url", "", "database URL, overrides DATABASE_URL")
	cmd.Flags().IntVar(&rollback, "rollback", 0, "revert the last N applied migrations instead of applying")
	return cmd
}
