package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/attune/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "attune",
		Short:         "Attune is a reactive listening-session engine.",
		Long:          "Attune runs shared listening sessions, turns listener reactions into preferences and keeps every session's recommendations up to date.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := logger.Init(); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	root.AddCommand(newServeCmd(), newCatalogCmd(), newSimulateCmd())
	return root
}
