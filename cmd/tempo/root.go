package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tempo",
	Short: "Schedule enforcement & earned-time daemon",
	Long: `Tempo turns a daily time plan into gentle enforcement and an
earned-time economy.

During planned focus blocks a background daemon watches the foreground
window, scores what you are doing against the block's intention, and
escalates distractions from a nudge to a redirect to a short
intervention. Staying on task earns minutes of leisure browsing;
browsing entertainment platforms spends them, at a cost that depends on
the current block.

Browser extensions and dashboards connect over a per-user unix socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(snoozeCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(versionCmd)
}
