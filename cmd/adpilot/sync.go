package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/core"
)

func syncCMD() *cobra.Command {
	var (
		cfgPath string
		full    bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "One-shot platform data sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			logger := log.New(log.Writer(), "[SYNC] ", log.LstdFlags)
			a, err := buildApp(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			mode := core.SyncRecent
			if full {
				mode = core.SyncFull
			}
			summary, err := a.orch.SyncDirectData(ctx, mode)
			if err != nil {
				return err
			}
			logger.Printf("synced %d campaigns, %d stat rows", summary.Campaigns, summary.StatRows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().BoolVar(&full, "full", false, "sync the trailing 90 days instead of 7")
	return cmd
}
