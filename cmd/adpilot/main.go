package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "adpilot",
		Short: "Conversational ad-campaign assistant",
	}
	root.AddCommand(serveCMD(), migrateCMD(), syncCMD(), reportCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
