package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ridedispatch/internal/app"
	"ridedispatch/internal/config"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/repository/postgres"
)

func migrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Create the riders, drivers and rides tables and their indexes.

The schema is idempotent, so running migrate against an up-to-date
database is a no-op.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logger.New(cfg.Log.Level).Action("migrate")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := app.NewDatabase(ctx, cfg.Database, nil)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema applied", "database", cfg.Database.DBName)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}
