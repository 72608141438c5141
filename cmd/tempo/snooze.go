package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tempo/internal/config"
	"tempo/internal/hub"
)

var (
	snoozeFor time.Duration
	snoozeEnd bool
)

var snoozeCmd = &cobra.Command{
	Use:   "snooze",
	Short: "Suspend enforcement for a while",
	Long: `Pause enforcement and earning without editing the plan.

The snooze ends on its own after the configured duration (30 minutes by
default). At most one snooze may be active; use --end to cut it short.`,
	RunE: runSnooze,
}

func init() {
	snoozeCmd.Flags().DurationVar(&snoozeFor, "for", 0,
		"snooze duration (default from config)")
	snoozeCmd.Flags().BoolVar(&snoozeEnd, "end", false,
		"end the active snooze")
}

func runSnooze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := dialDaemon(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if snoozeEnd {
		if _, err := client.Snooze(0, true); err != nil {
			return fmt.Errorf("end snooze: %w", err)
		}
		fmt.Println("Snooze ended.")
		return nil
	}

	d := snoozeFor
	if d <= 0 {
		d = cfg.Daemon.SnoozeDuration
	}
	if _, err := client.Snooze(d, false); err != nil {
		return fmt.Errorf("snooze: %w", err)
	}
	fmt.Printf("Snoozed for %s.\n", d)
	return nil
}

// dialDaemon connects to the running daemon and consumes the state
// snapshot every connection receives on connect.
func dialDaemon(cfg *config.Config) (*hub.Client, error) {
	client, err := hub.Dial(hub.SocketPath(cfg.Hub.SocketPath))
	if err != nil {
		return nil, fmt.Errorf("daemon not running, start it with 'tempo daemon'")
	}
	if _, err := client.Hello(); err != nil {
		client.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return client, nil
}
