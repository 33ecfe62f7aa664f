package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/auth"
	"github.com/amrlab/amrflow/internal/store"
)

var (
	adminUsername string
	adminPassword string
	adminEmail    string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator account",
	Long: `Creates an active admin user. Use this to bootstrap a fresh
deployment; all further user management goes through the HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminUsername == "" || adminPassword == "" {
			return errors.New("--username and --password are required")
		}

		log := newLogger()
		db, err := openStore(log)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		if _, err := db.GetUserByUsername(ctx,
			adminUsername); err == nil {

			return fmt.Errorf("user %q already exists", adminUsername)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		hashed, err := auth.HashPassword(adminPassword)
		if err != nil {
			return err
		}

		var email *string
		if adminEmail != "" {
			email = &adminEmail
		}

		user, err := db.CreateUser(ctx, store.CreateUserParams{
			Username:       adminUsername,
			Email:          email,
			HashedPassword: hashed,
			Role:           amr.RoleAdmin,
		})
		if err != nil {
			return fmt.Errorf("unable to create admin: %w", err)
		}

		fmt.Printf("Created admin %q (id %d)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	adminCreateCmd.Flags().StringVar(
		&adminUsername, "username", "", "Admin username",
	)
	adminCreateCmd.Flags().StringVar(
		&adminPassword, "password", "", "Admin password",
	)
	adminCreateCmd.Flags().StringVar(
		&adminEmail, "email", "", "Admin email (optional)",
	)

	adminCmd.AddCommand(adminCreateCmd)
}
