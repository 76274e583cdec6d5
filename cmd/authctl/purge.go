package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/eldercare-auth/internal/app"
	"github.com/iliyamo/eldercare-auth/internal/jobs"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired single-use tokens and refresh sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPurge(cmd, grace)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", -1, "keep rows that expired less than this long ago (default PURGE_GRACE)")
	return cmd
}

func runPurge(cmd *cobra.Command, grace time.Duration) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if grace < 0 {
		grace = cfg.PurgeGrace
	}

	backend, err := app.OpenBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	codec, err := app.NewCodec(cfg)
	if err != nil {
		return err
	}
	oneTime, sessions := backend.Stores(cfg, codec)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	p := &jobs.Purge{Tokens: oneTime, Sessions: sessions, Grace: grace, Log: log}
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Purged %d single-use tokens and %d refresh sessions\n", res.Tokens, res.Sessions)
	return nil
}
