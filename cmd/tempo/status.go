package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tempo/internal/config"
	"tempo/internal/hub"
	"tempo/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current state",
	Long: `Display the current state of the tempo daemon.

Shows:
  - The current time-state and active block
  - Earned, used, and available minutes
  - The current spend multiplier
  - Open browsing sessions`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := hub.Dial(hub.SocketPath(cfg.Hub.SocketPath))
	if err != nil {
		fmt.Println("Daemon not running. Start it with 'tempo daemon'.")
		return nil
	}
	defer client.Close()

	reply, err := client.QueryState()
	if err != nil {
		return fmt.Errorf("query daemon: %w", err)
	}

	displaySchedule(reply.Schedule, reply.Locked)
	displayLedger(reply.Ledger)
	displaySessions(reply.Sessions)
	return nil
}

func displaySchedule(s hub.ScheduleSync, locked bool) {
	fmt.Printf("State:     %s\n", stateColor(s.State)(string(s.State)))
	if s.BlockID != "" {
		remaining := time.Duration(s.RemainingSeconds) * time.Second
		fmt.Printf("Block:     %s (%s, %s left)\n",
			s.BlockTitle, s.BlockKind, remaining.Round(time.Minute))
	}
	if locked {
		fmt.Printf("Plan:      %s\n", color.YellowString("locked"))
	}
	fmt.Println()
}

func displayLedger(l hub.LedgerUpdate) {
	available := color.GreenString("%.1f min", l.Available)
	if l.Available <= 0 {
		available = color.RedString("0.0 min")
	}
	fmt.Printf("Earned:    %.1f min\n", l.EarnedMinutes)
	fmt.Printf("Used:      %.1f min\n", l.UsedMinutes)
	fmt.Printf("Available: %s (spending at %.0fx)\n", available, l.CostMultiplier)
}

func displaySessions(sessions []models.SessionState) {
	if len(sessions) == 0 {
		return
	}
	fmt.Println("\nOpen sessions:")
	for _, s := range sessions {
		tag := ""
		if s.Filtered {
			tag = color.CyanString(" [filtered]")
		}
		fmt.Printf("  %s at %.0fx%s\n", s.Platform, s.CostMultiplier, tag)
	}
}

func stateColor(state models.TimeState) func(string, ...interface{}) string {
	switch state {
	case models.StateWorkBlock:
		return color.GreenString
	case models.StateFreeBlock:
		return color.CyanString
	case models.StateSnoozed, models.StateUnplanned:
		return color.YellowString
	case models.StateDisabled:
		return color.RedString
	default:
		return fmt.Sprintf
	}
}
