package main

import (
	"github.com/noces-app/backend/internal/app"
	"github.com/noces-app/backend/internal/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {

	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {

			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := app.Migrate(cfg, down); err != nil {
				logger.Error("migration failed", map[string]any{
					"error": err.Error(),
				})
				return err
			}

			return nil

		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")

	return cmd

}
