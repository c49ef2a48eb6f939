package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stayengine/internal/infra/fixtures"
)

func advanceCmd() *cobra.Command {
	var (
		at    string
		drain bool
	)
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Run the scheduled state batch once and print the transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = parsed.UTC()
			}
			ctx := cmd.Context()
			st, err := buildStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			res, err := st.engine.AdvanceScheduledStates(ctx, now)
			if err != nil {
				return err
			}
			if drain {
				if worker := st.relay(cfg, logger); worker != nil {
					n, err := worker.Drain(ctx)
					if err != nil {
						return err
					}
					logger.Info("outbox drained", "published", n)
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "evaluate as of this RFC3339 instant (default: current time)")
	cmd.Flags().BoolVar(&drain, "drain", false, "publish pending outbox records before exiting")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the storage schema and import listing fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := buildStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())
			n, err := fixtures.Seed(ctx, st.listings, cfg.ListingsFixtures, logger)
			if err != nil {
				return err
			}
			logger.Info("schema ready", "store", cfg.Store, "listings", n)
			return nil
		},
	}
}
