package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tempo/internal/config"
	"tempo/internal/schedule"
	"tempo/internal/store"
	"tempo/pkg/models"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the day's block plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var planLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a day plan from a YAML file",
	Long: `Validate a YAML day plan and install it as today's schedule.

The file lists blocks with a title, a kind (deep-focus, light-focus,
or free-time), and wall-clock start/end times:

  date: 2026-08-31        # optional, defaults to today
  blocks:
    - title: Write the report
      kind: deep-focus
      start: "09:00"
      end: "11:30"
    - title: Email and admin
      kind: light-focus
      start: "13:00"
      end: "14:00"

Blocks must be at least 15 minutes long and must not overlap. A locked
plan rejects loading. The running daemon picks the new plan up on its
next restart.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanLoad,
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current day plan",
	RunE:  runPlanShow,
}

var planPushCmd = &cobra.Command{
	Use:   "push <block-id> <minutes>",
	Short: "Delay an upcoming block's start",
	Long: `Push a not-yet-started block's start forward by some minutes,
keeping its end fixed. Block ids come from 'tempo plan show'. The edit
goes through the running daemon and respects the same validation as any
other plan change: a locked plan, an in-progress block, or a push that
would leave the block too short are all rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runPlanPush,
}

func init() {
	planCmd.AddCommand(planLoadCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planPushCmd)
}

// planFile is the YAML day-plan document.
type planFile struct {
	Date   string      `yaml:"date"`
	Blocks []planBlock `yaml:"blocks"`
}

type planBlock struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Kind        string `yaml:"kind"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
}

func runPlanLoad(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	var plan planFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	if len(plan.Blocks) == 0 {
		return fmt.Errorf("plan has no blocks")
	}

	day := time.Now()
	if plan.Date != "" {
		day, err = time.ParseInLocation("2006-01-02", plan.Date, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", plan.Date, err)
		}
	}

	blocks := make([]models.TimeBlock, 0, len(plan.Blocks))
	for _, pb := range plan.Blocks {
		block, err := pb.toBlock(day)
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
	}

	files, err := store.NewFileStore(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}
	engine := schedule.New(files, false)
	if locked, err := files.LockMode(); err == nil {
		engine.SetLocked(locked)
	}
	if err := engine.LoadDay(blocks); err != nil {
		return fmt.Errorf("install plan: %w", err)
	}

	fmt.Printf("Installed %d blocks for %s\n", len(blocks), day.Format("2006-01-02"))
	return nil
}

func (pb planBlock) toBlock(day time.Time) (models.TimeBlock, error) {
	if pb.Title == "" {
		return models.TimeBlock{}, fmt.Errorf("block is missing a title")
	}
	kind := models.BlockKind(pb.Kind)
	if !kind.Valid() {
		return models.TimeBlock{}, fmt.Errorf("block %q: unknown kind %q", pb.Title, pb.Kind)
	}
	start, err := wallClock(day, pb.Start)
	if err != nil {
		return models.TimeBlock{}, fmt.Errorf("block %q: %w", pb.Title, err)
	}
	end, err := wallClock(day, pb.End)
	if err != nil {
		return models.TimeBlock{}, fmt.Errorf("block %q: %w", pb.Title, err)
	}
	if !end.After(start) {
		return models.TimeBlock{}, fmt.Errorf("block %q: end is not after start", pb.Title)
	}
	return models.TimeBlock{
		Title:       pb.Title,
		Description: pb.Description,
		Kind:        kind,
		Start:       start,
		End:         end,
	}, nil
}

func wallClock(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), 0, 0, time.Local), nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	files, err := store.NewFileStore(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	blocks, err := files.LoadSchedule()
	if err != nil || len(blocks) == 0 {
		fmt.Println("No plan loaded. Run 'tempo plan load <file>'.")
		return nil
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Start.Before(blocks[j].Start) })

	for _, b := range blocks {
		fmt.Printf("%s-%s  %-12s %-24s %s\n",
			b.Start.Format("15:04"), b.End.Format("15:04"), b.Kind, b.Title, b.ID)
	}
	return nil
}

func runPlanPush(cmd *cobra.Command, args []string) error {
	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("invalid minutes %q", args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := dialDaemon(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.PushStart(args[0], minutes); err != nil {
		return fmt.Errorf("push block: %w", err)
	}
	fmt.Printf("Pushed block %s by %d minutes.\n", args[0], minutes)
	return nil
}
