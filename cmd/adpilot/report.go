package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/chat"
	"github.com/adpilot-bot/adpilot/internal/core"
)

func reportCMD() *cobra.Command {
	var (
		cfgPath string
		weekly  bool
		notify  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report once and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			logger := log.New(log.Writer(), "[REPORT] ", log.LstdFlags)

			var transport chat.Transport
			if notify {
				transport, err = chat.NewTelegramTransport(cfg.Telegram)
				if err != nil {
					return err
				}
			}
			a, err := buildApp(ctx, cfg, transport, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var report core.Report
			if weekly {
				report, err = a.orch.GenerateWeeklyReport(ctx, notify)
			} else {
				report, err = a.orch.GenerateDailyReport(ctx, notify)
			}
			if err != nil {
				return err
			}
			fmt.Println(report.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().BoolVar(&weekly, "weekly", false, "generate the weekly report")
	cmd.Flags().BoolVar(&notify, "notify", false, "also deliver to the owner chat")
	return cmd
}
