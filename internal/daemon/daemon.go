package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tempo/internal/config"
	"tempo/internal/hub"
	"tempo/internal/ledger"
	"tempo/internal/monitor"
	"tempo/internal/schedule"
	"tempo/internal/scorer"
	"tempo/internal/session"
	"tempo/internal/store"
	"tempo/internal/timeutil"
	"tempo/pkg/models"
)

// Daemon owns every long-lived component and their lifecycles. It also
// bridges the monitor-hub cycle: the monitor's enforcer forwards to
// the hub, and the hub's suppressor forwards to the monitor.
type Daemon struct {
	cfg    *config.Config
	clock  timeutil.Clock
	logger *DebugLogger

	files    *store.FileStore
	history  *store.History
	engine   *schedule.Engine
	ledger   *ledger.Manager
	scorer   *scorer.Scorer
	sessions *session.Manager
	monitor  *monitor.Monitor
	hub      *hub.Hub
}

// ledgerObserver adapts the ledger onto the schedule engine's observer
// chain. Registered first: balances settle before the monitor
// re-evaluates and before the hub broadcasts.
type ledgerObserver struct {
	led    *ledger.Manager
	logger *DebugLogger
}

func (o *ledgerObserver) ScheduleChanged(ev schedule.ChangeEvent) {
	if !ev.BlockChanged {
		return
	}
	if err := o.led.OnBlockChanged(); err != nil {
		o.logger.Log("ledger block reset failed: %v", err)
	}
}

// New constructs a daemon from configuration. clock may be nil for the
// real clock.
func New(cfg *config.Config, clock timeutil.Clock, logger *DebugLogger) (*Daemon, error) {
	if clock == nil {
		clock = timeutil.Real()
	}
	if logger == nil {
		logger = NopLogger()
	}

	dataDir := cfg.DataDir()
	files, err := store.NewFileStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}

	history, err := store.OpenHistory(store.HistoryPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	rates := ledger.Rates{
		StandardEarn:         cfg.Rates.StandardEarn,
		DeepFocusEarn:        cfg.Rates.DeepFocusEarn,
		WelcomeCreditMinutes: cfg.Rates.WelcomeCreditMinutes,
		PartnerGrantMinutes:  cfg.Rates.PartnerGrantMinutes,
		PartnerGrantsPerDay:  cfg.Rates.PartnerGrantsPerDay,
	}
	led, err := ledger.New(rates, files, history, clock.Now)
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("restore ledger: %w", err)
	}

	engine := schedule.New(files, cfg.Daemon.Disabled)
	if locked, err := files.LockMode(); err == nil {
		engine.SetLocked(locked)
	}
	if blocks, err := files.LoadSchedule(); err == nil {
		if err := engine.LoadDay(blocks); err != nil {
			logger.Log("restore schedule: %v", err)
		}
	}

	inference, err := scorer.NewClient(scorer.ClientConfig{
		Model:         cfg.Scorer.Model,
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("create inference client: %w", err)
	}
	sc := scorer.New(inference, cfg.Scorer.Timeout, cfg.Scorer.MinKeywordOverlap)

	sessions, err := session.New(files, clock.Now)
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("restore sessions: %w", err)
	}

	settings, err := files.LoadSettings()
	if err != nil {
		settings = models.DefaultSettings()
	}

	d := &Daemon{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		files:    files,
		history:  history,
		engine:   engine,
		ledger:   led,
		scorer:   sc,
		sessions: sessions,
	}

	// The monitor's enforcer and the hub's suppressor both route
	// through the daemon, which breaks the construction cycle.
	d.monitor = monitor.New(cfg.Enforcement, &monitor.SystemSampler{}, sc, led,
		files, history, d, logger)
	d.hub = hub.New(led, sc, engine, sessions, d, logger, settings, clock.Now)
	led.SetEvents(d.hub)

	// Observer order is a contract: ledger settles first, then the
	// monitor re-targets, then the hub broadcasts the settled state.
	engine.Register(&ledgerObserver{led: led, logger: logger})
	engine.Register(d.monitor)
	engine.Register(d.hub)

	return d, nil
}

// ShowOverlay implements the monitor's enforcer by forwarding to the hub.
func (d *Daemon) ShowOverlay(kind models.EnforcementAction, duration time.Duration) {
	d.hub.ShowOverlay(kind, duration)
}

// HideOverlay implements the monitor's enforcer by forwarding to the hub.
func (d *Daemon) HideOverlay() {
	d.hub.HideOverlay()
}

// Suppress implements the hub's suppressor by forwarding to the monitor.
func (d *Daemon) Suppress(on bool) {
	d.monitor.Suppress(on)
}

// Hub exposes the protocol hub, for tests and the CLI.
func (d *Daemon) Hub() *hub.Hub { return d.hub }

// Engine exposes the schedule engine.
func (d *Daemon) Engine() *schedule.Engine { return d.engine }

// Ledger exposes the ledger manager.
func (d *Daemon) Ledger() *ledger.Manager { return d.ledger }

// Run starts the hub and drives the poll, heartbeat, and rollover
// loops until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	socketPath := hub.SocketPath(d.cfg.Hub.SocketPath)
	if err := d.hub.Listen(socketPath); err != nil {
		return err
	}
	d.logger.Log("listening on %s", socketPath)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.hub.Serve(ctx)
	}()

	if err := d.ledger.GrantWelcomeCredit(); err != nil {
		d.logger.Log("welcome credit: %v", err)
	}

	// Prime observers with the current state before the first tick.
	d.engine.Tick(d.clock.Now())

	pollC, stopPoll := d.clock.NewTicker(d.cfg.Enforcement.PollInterval)
	defer stopPoll()
	heartbeatC, stopHeartbeat := d.clock.NewTicker(d.cfg.Daemon.HeartbeatInterval)
	defer stopHeartbeat()

	go d.watchSettings(ctx)

	lastDay := midnight(d.clock.Now())
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return <-serveErr
		case err := <-serveErr:
			d.shutdown()
			return err
		case now := <-pollC:
			if day := midnight(now); !day.Equal(lastDay) {
				lastDay = day
				if err := d.ledger.OnDayChanged(); err != nil {
					d.logger.Log("day rollover: %v", err)
				}
			}
			d.engine.Tick(now)
			d.monitor.Poll(ctx, now)
		case <-heartbeatC:
			for _, platform := range d.sessions.PruneStale(2 * d.cfg.Daemon.HeartbeatInterval) {
				d.logger.Log("session expired: %s", platform)
			}
		}
	}
}

func (d *Daemon) shutdown() {
	d.hub.Close()
	if err := d.history.Close(); err != nil {
		d.logger.Log("close history: %v", err)
	}
	d.logger.Log("daemon stopped")
}

// watchSettings reloads settings when the dashboard rewrites the
// settings file, and fans the change out to connected clients.
func (d *Daemon) watchSettings(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Log("settings watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic rewrites replace the
	// inode and would silently detach a file-level watch.
	if err := watcher.Add(filepath.Dir(d.files.SettingsPath())); err != nil {
		d.logger.Log("watch settings dir: %v", err)
		return
	}

	target := filepath.Base(d.files.SettingsPath())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			settings, err := d.files.LoadSettings()
			if err != nil {
				d.logger.Log("reload settings: %v", err)
				continue
			}
			d.logger.Log("settings reloaded")
			d.hub.SetSettings(settings)
		case <-watcher.Errors:
			// Keep watching.
		}
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
