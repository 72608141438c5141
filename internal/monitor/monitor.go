package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempo/internal/config"
	"tempo/internal/schedule"
	"tempo/internal/scorer"
	"tempo/pkg/models"
)

// LedgerSink is the slice of the ledger the monitor drives.
type LedgerSink interface {
	TickEarn(seconds float64, deepFocus bool) (float64, error)
	RecordVisit() (int, error)
}

// Scorer is the relevance pipeline the monitor consults.
type Scorer interface {
	Score(ctx context.Context, target, intention, description string) scorer.Result
	OnBlockChanged()
}

// AssessmentLog records scoring decisions append-only.
type AssessmentLog interface {
	AppendAssessment(a *models.RelevanceAssessment) error
}

// StatsArchiver receives finalized block focus stats.
type StatsArchiver interface {
	ArchiveBlockStats(stats *models.BlockFocusStats) error
}

// Enforcer carries enforcement actions to the clients. The hub
// implements this by broadcasting overlay messages.
type Enforcer interface {
	ShowOverlay(kind models.EnforcementAction, duration time.Duration)
	HideOverlay()
}

// Logger is the minimal logging dependency.
type Logger interface {
	Log(format string, args ...interface{})
}

// Monitor samples the foreground target on a fixed interval and drives
// escalation, earning, and assessment logging for the active work
// block. All state is guarded by one mutex; Poll and ScheduleChanged
// never run concurrently with each other.
type Monitor struct {
	mu sync.Mutex

	cfg      config.EnforcementConfig
	sampler  Sampler
	scorer   Scorer
	ledger   LedgerSink
	log      AssessmentLog
	archiver StatsArchiver
	enforcer Enforcer
	logger   Logger

	block        *models.TimeBlock
	escalation   *Escalation
	window       *FocusWindow
	stats        *models.BlockFocusStats
	seenOffTask  map[string]bool
	lastPoll     time.Time
	lastRelevant bool
	allowed      map[string]bool
}

// New creates a monitor. Any of log, archiver, enforcer, and logger
// may be nil; missing collaborators are skipped.
func New(cfg config.EnforcementConfig, sampler Sampler, sc Scorer, led LedgerSink,
	log AssessmentLog, archiver StatsArchiver, enforcer Enforcer, logger Logger) *Monitor {

	allowed := make(map[string]bool, len(cfg.AlwaysAllowed))
	for _, label := range cfg.AlwaysAllowed {
		allowed[label] = true
	}

	return &Monitor{
		cfg:          cfg,
		sampler:      sampler,
		scorer:       sc,
		ledger:       led,
		log:          log,
		archiver:     archiver,
		enforcer:     enforcer,
		logger:       logger,
		escalation:   NewEscalation(cfg.LightFocus, cfg.DecayWindow, cfg.InterventionDurations),
		window:       NewFocusWindow(cfg.FocusWindow, 2*cfg.PollInterval),
		seenOffTask:  map[string]bool{},
		allowed:      allowed,
		lastRelevant: true,
	}
}

// ScheduleChanged implements schedule.Observer. On a block change the
// previous block's stats are finalized and archived, escalation and
// the scorer's per-block caches reset, and enforcement re-targets the
// new block (or stops when the new state is not a work block).
func (m *Monitor) ScheduleChanged(ev schedule.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ev.BlockChanged {
		// A pure state flip (e.g. snooze) keeps block-scoped state;
		// enforcement simply pauses while the state is not enforced.
		if !ev.NewState.Enforced() {
			m.block = nil
			return
		}
		m.block = ev.Block
		return
	}

	if m.stats != nil {
		m.stats.FinalizedAt = ev.At
		if m.archiver != nil {
			if err := m.archiver.ArchiveBlockStats(m.stats); err != nil && m.logger != nil {
				m.logger.Log("archive block stats: %v", err)
			}
		}
		m.stats = nil
	}

	m.seenOffTask = map[string]bool{}
	m.window.Reset()
	m.scorer.OnBlockChanged()

	if ev.NewState.Enforced() && ev.Block != nil {
		m.block = ev.Block
		m.escalation.Reset(m.cfg.Thresholds(ev.Block.Kind == models.KindDeepFocus))
		m.stats = &models.BlockFocusStats{
			BlockID:    ev.Block.ID,
			BlockTitle: ev.Block.Title,
			Kind:       ev.Block.Kind,
			StartedAt:  ev.At,
		}
	} else {
		m.block = nil
		m.escalation.Reset(m.cfg.LightFocus)
	}
	m.lastRelevant = true
}

// Poll runs one sampling cycle. Outside a work block it does nothing.
// Sampling errors are fail-neutral: the poll is skipped and escalation
// is neither advanced nor reset. A pending inference call defers the
// enforcement decision until its result (or fail-closed timeout)
// arrives; Poll blocks for at most the scorer timeout.
func (m *Monitor) Poll(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.block == nil {
		m.lastPoll = now
		return
	}

	dt := m.cfg.PollInterval
	if !m.lastPoll.IsZero() {
		if elapsed := now.Sub(m.lastPoll); elapsed > 0 && elapsed < 2*m.cfg.PollInterval {
			dt = elapsed
		}
	}
	m.lastPoll = now

	target, err := m.sampler.Sample()
	if err != nil {
		if m.logger != nil {
			m.logger.Log("foreground sample failed: %v", err)
		}
		return
	}
	label := target.Label()

	// Restricted platforms belong to the browser-side filter. The
	// monitor neither escalates nor earns while one is foreground.
	skipped := scorer.Result{Reason: "restricted platform", Source: "restricted"}
	if _, restricted := models.PlatformForTarget(label); restricted {
		m.appendAssessmentLocked(label, skipped, models.ActionSkipped, now)
		return
	}
	if _, restricted := models.PlatformForTarget(target.URL); restricted {
		m.appendAssessmentLocked(label, skipped, models.ActionSkipped, now)
		return
	}

	var result scorer.Result
	if m.allowed[label] || m.allowed[target.App] {
		result = scorer.Result{Relevant: true, Confidence: 1, Reason: "always-allowed", Source: "always-allowed"}
	} else {
		result = m.scorer.Score(ctx, label, m.block.Intention(), m.block.Description)
	}

	m.window.Add(now, result.Relevant)
	if m.stats != nil {
		m.stats.TotalPolls++
		if result.Relevant {
			m.stats.OnTaskPolls++
		}
	}

	action := models.ActionNone
	if result.Relevant {
		wasEscalated := m.escalation.Stage() != models.StageRelevant
		m.escalation.Relax(dt, now)
		if wasEscalated && m.enforcer != nil {
			m.enforcer.HideOverlay()
		}

		earned, err := m.ledger.TickEarn(dt.Seconds(), m.window.DeepFocus(now))
		if err != nil && m.logger != nil {
			m.logger.Log("earn tick failed: %v", err)
		}
		if m.stats != nil {
			m.stats.EarnedMinutes += earned
		}
		m.lastRelevant = true
	} else {
		revisit := false
		if m.lastRelevant {
			// A fresh distraction visit.
			revisit = m.seenOffTask[label]
			m.seenOffTask[label] = true
			if _, err := m.ledger.RecordVisit(); err != nil && m.logger != nil {
				m.logger.Log("record visit failed: %v", err)
			}
		}
		action = m.escalation.Accrue(dt, revisit, now)
		m.dispatchLocked(action)
		m.lastRelevant = false
		if action == models.ActionNone && m.escalation.Suppressed() {
			action = models.ActionSkipped
		}
	}

	m.appendAssessmentLocked(label, result, action, now)
}

func (m *Monitor) dispatchLocked(action models.EnforcementAction) {
	if m.enforcer == nil || action == models.ActionNone {
		return
	}
	switch action {
	case models.ActionNudge:
		m.enforcer.ShowOverlay(models.ActionNudge, 0)
	case models.ActionRedirect:
		m.enforcer.ShowOverlay(models.ActionRedirect, 0)
	case models.ActionIntervention:
		m.enforcer.ShowOverlay(models.ActionIntervention, m.escalation.InterventionDuration())
	}
}

func (m *Monitor) appendAssessmentLocked(label string, result scorer.Result, action models.EnforcementAction, now time.Time) {
	if m.log == nil {
		return
	}
	a := &models.RelevanceAssessment{
		ID:         uuid.New().String(),
		Target:     label,
		Intention:  m.block.Intention(),
		Relevant:   result.Relevant,
		Confidence: result.Confidence,
		Reason:     result.Reason,
		Source:     result.Source,
		Action:     action,
		CreatedAt:  now,
	}
	if err := m.log.AppendAssessment(a); err != nil && m.logger != nil {
		m.logger.Log("append assessment failed: %v", err)
	}
}

// Suppress pauses or resumes enforcement actions while an interactive
// prompt is open on a client.
func (m *Monitor) Suppress(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalation.Suppress(on)
}

// DeepFocus reports whether the deep-focus bonus currently holds.
func (m *Monitor) DeepFocus(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.DeepFocus(now)
}

// Stage returns the current escalation stage.
func (m *Monitor) Stage() models.EscalationStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalation.Stage()
}

// Stats returns a copy of the active block's focus stats, or nil when
// no work block is active.
func (m *Monitor) Stats() *models.BlockFocusStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		return nil
	}
	copied := *m.stats
	return &copied
}
