package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iliyamo/eldercare-auth/internal/config"
	"github.com/iliyamo/eldercare-auth/internal/database"
)

// NewMigrateCmd creates the migrate command. Bare `migrate` applies pending
// migrations, like `migrate up`.
func NewMigrateCmd() *cobra.Command {
	up := func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *database.Migrator) error {
			cmd.Println("Running migrations...")
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the auth schema",
		Long:  `Apply the embedded schema migrations (users, single_use_tokens, refresh_sessions, audit_events) to the configured MySQL database.`,
		RunE:  up,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  up,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations, dropping every auth table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *database.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations reverted")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *database.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if dirty {
					cmd.Printf("Schema version %d (dirty)\n", v)
					return nil
				}
				cmd.Printf("Schema version %d\n", v)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(fn func(*database.Migrator) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store != config.StoreMySQL {
		return errors.Errorf("migrate needs STORE=mysql, got %q", cfg.Store)
	}

	m, err := database.NewMigrator(cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn().Err(err).Msg("close migrator failed")
		}
	}()
	return fn(m)
}
