// Package commands holds the stayengine command line.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"stayengine/internal/infra/config"
	"stayengine/internal/infra/obs"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "stayengine",
		Short:         "Booking lifecycle engine for short-term rentals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logger = obs.NewLogger(cfg.Env)
			slog.SetDefault(logger)
			return nil
		},
	}
	root.AddCommand(serveCmd(), advanceCmd(), migrateCmd())
	err := root.Execute()
	if err != nil {
		if logger == nil {
			logger = obs.NewLogger("dev")
		}
		logger.Error("command failed", "error", err)
	}
	return err
}
