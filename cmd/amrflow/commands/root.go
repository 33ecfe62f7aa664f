// Package commands implements the amrflow CLI subcommands. They operate on
// the database directly and are meant for operators, not annotators.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amrlab/amrflow/internal/config"
	"github.com/amrlab/amrflow/internal/db"
	"github.com/amrlab/amrflow/internal/store"
)

var (
	// configFile is the path to the config file.
	configFile string

	// dbPath overrides the configured database path.
	dbPath string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "amrflow",
	Short: "Administrative CLI for the AMR annotation platform",
	Long: `amrflow manages the annotation platform database directly:
applying schema migrations, bootstrapping the first admin account, and
running exports without going through the HTTP API.`,

	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configFile, "config", "",
		"Path to config file (default: ~/.amrflow/amrflow.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (overrides the config file)",
	)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(exportCmd)
}

// newLogger returns the CLI logger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// resolveDBPath picks the database path from the --db flag or the config.
// Commands that only need the database tolerate a missing secret_key by
// falling back to the default path.
func resolveDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	settings, err := config.Load(configFile)
	if err == nil {
		return settings.DatabasePath, nil
	}
	if configFile != "" {
		return "", err
	}

	return db.DefaultDBPath()
}

// openStore opens the database, applies migrations, and wraps it in the SQL
// store. The caller must Close the store.
func openStore(log *slog.Logger) (*store.SQLStore, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.Open(path, log)
	if err != nil {
		return nil, err
	}

	return store.NewSQLStore(sqlDB), nil
}
