package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"tempo/internal/config"
	"tempo/internal/daemon"
)

var daemonDebugLog bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the enforcement daemon in the foreground",
	Long: `Run the tempo daemon in the foreground until interrupted.

The daemon loads the day's plan, polls the foreground window during
focus blocks, maintains the earned-time ledger, and serves connected
browser extensions over the per-user unix socket.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonDebugLog, "debug-log", false,
		"Write a debug log to the data directory")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := daemon.NopLogger()
	if daemonDebugLog {
		logPath := filepath.Join(cfg.DataDir(), "logs", "daemon-debug.log")
		logger, err = daemon.NewDebugLogger(logPath)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
		fmt.Printf("Debug log: %s\n", logPath)
	}

	d, err := daemon.New(cfg, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("tempo daemon running (ctrl-c to stop)")
	return d.Run(ctx)
}
