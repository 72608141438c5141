package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tempo/internal/config"
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Apply one partner time grant",
	Long: `Credit one partner time grant to today's pool.

Grants are meant to be applied by an accountability partner from their
own login. The grant size and the per-day cap come from the daemon's
configuration.`,
	RunE: runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := dialDaemon(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ledger, err := client.Grant()
	if err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	fmt.Printf("Granted %.0f minutes. Available: %.1f min\n",
		cfg.Rates.PartnerGrantMinutes, ledger.Available)
	return nil
}
