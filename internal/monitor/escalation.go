package monitor

import (
	"time"

	"tempo/internal/config"
	"tempo/pkg/models"
)

// Escalation is the per-block distraction state machine. The
// cumulative distraction counter rises while off-task and unwinds over
// the decay window while on-task; the stage only moves forward while
// the counter is non-decreasing, and resets wholesale on block change.
type Escalation struct {
	thresholds config.StageThresholds
	decay      time.Duration
	durations  []time.Duration

	distraction   float64
	decayFrom     float64
	stage         models.EscalationStage
	transitionAt  time.Time
	suppressed    bool
	interventions int
}

// NewEscalation creates the machine for one block, parameterized by
// that block kind's thresholds.
func NewEscalation(thresholds config.StageThresholds, decay time.Duration, durations []time.Duration) *Escalation {
	return &Escalation{
		thresholds: thresholds,
		decay:      decay,
		durations:  durations,
	}
}

// Stage returns the current escalation stage.
func (e *Escalation) Stage() models.EscalationStage {
	return e.stage
}

// Distraction returns the cumulative distraction seconds.
func (e *Escalation) Distraction() float64 {
	return e.distraction
}

// Suppress pauses enforcement actions while an interactive prompt is
// open. The counter still accrues; only actions are withheld.
func (e *Escalation) Suppress(on bool) {
	e.suppressed = on
}

// Suppressed reports whether actions are currently withheld.
func (e *Escalation) Suppressed() bool {
	return e.suppressed
}

// Accrue adds dt of off-task time and advances the stage when a
// threshold is crossed. revisit forces an instant redirect for targets
// already seen off-task in this block. Returns the action to take, or
// ActionNone when no stage boundary was crossed or actions are
// suppressed.
func (e *Escalation) Accrue(dt time.Duration, revisit bool, now time.Time) models.EnforcementAction {
	e.distraction += dt.Seconds()
	e.decayFrom = e.distraction

	next := e.stage
	switch {
	case e.distraction >= e.thresholds.Intervention:
		next = models.StageIntervention
	case revisit || e.distraction >= e.thresholds.Redirect:
		next = models.StageRedirect
	case e.distraction >= e.thresholds.Nudge:
		next = models.StageNudge
	}

	// Stages never move backward while distraction keeps rising.
	if next <= e.stage {
		return models.ActionNone
	}
	e.stage = next
	e.transitionAt = now

	if e.suppressed {
		return models.ActionNone
	}
	switch next {
	case models.StageNudge:
		return models.ActionNudge
	case models.StageRedirect:
		return models.ActionRedirect
	case models.StageIntervention:
		e.interventions++
		return models.ActionIntervention
	default:
		return models.ActionNone
	}
}

// Relax records dt of on-task time. The stage returns to relevant
// immediately; the distraction counter unwinds linearly over the decay
// window rather than snapping to zero.
func (e *Escalation) Relax(dt time.Duration, now time.Time) {
	if e.stage != models.StageRelevant {
		e.stage = models.StageRelevant
		e.transitionAt = now
	}
	if e.distraction <= 0 || e.decay <= 0 {
		e.distraction = 0
		return
	}

	step := e.decayFrom * dt.Seconds() / e.decay.Seconds()
	if step <= 0 {
		step = e.distraction
	}
	e.distraction -= step
	if e.distraction < 0 {
		e.distraction = 0
	}
}

// InterventionDuration returns the length of the current intervention,
// escalating with each repeat within the same block.
func (e *Escalation) InterventionDuration() time.Duration {
	if len(e.durations) == 0 {
		return time.Minute
	}
	idx := e.interventions - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(e.durations) {
		idx = len(e.durations) - 1
	}
	return e.durations[idx]
}

// Reset clears all state for a new block.
func (e *Escalation) Reset(thresholds config.StageThresholds) {
	e.thresholds = thresholds
	e.distraction = 0
	e.decayFrom = 0
	e.stage = models.StageRelevant
	e.suppressed = false
	e.interventions = 0
	e.transitionAt = time.Time{}
}
