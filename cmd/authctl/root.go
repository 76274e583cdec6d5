package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/eldercare-auth/internal/config"
	"github.com/iliyamo/eldercare-auth/internal/logging"
)

var envFile string

// NewRootCmd creates the authctl root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Maintenance commands for the eldercare auth service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())
	return cmd
}

// loadConfig loads the dotenv file, if present, and the configuration.
func loadConfig() (config.Config, zerolog.Logger, error) {
	_ = godotenv.Load(envFile)
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Env, cfg.LogLevel), nil
}
