package main

import (
	"fmt"
	"os"

	"github.com/noces-app/backend/internal/config"
	"github.com/noces-app/backend/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {

	root := &cobra.Command{
		Use:           "noces-api",
		Short:         "Noces events API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
	)

	return root

}

// bootstrap loads configuration and initialises the process logger.
func bootstrap() (config.Config, error) {

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return config.Config{}, err
	}

	if err := logger.Init(cfg.LogLevel, !cfg.IsProduction()); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialise logger:", err)
		return config.Config{}, err
	}

	return cfg, nil

}
