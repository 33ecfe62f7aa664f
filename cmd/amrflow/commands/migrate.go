package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amrlab/amrflow/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		path, err := resolveDBPath()
		if err != nil {
			return err
		}

		sqlDB, err := db.OpenSQLite(path)
		if err != nil {
			return fmt.Errorf("unable to open database: %w", err)
		}
		defer sqlDB.Close()

		if err := db.ApplyAllMigrations(sqlDB, log); err != nil {
			return fmt.Errorf("unable to apply migrations: %w", err)
		}

		fmt.Printf("Database at %s is up to date\n", path)
		return nil
	},
}
