package monitor

import (
	"testing"
	"time"

	"tempo/internal/config"
	"tempo/pkg/models"
)

func testThresholds() config.StageThresholds {
	return config.StageThresholds{Nudge: 30, Redirect: 120, Intervention: 600}
}

func newTestEscalation() *Escalation {
	return NewEscalation(testThresholds(), 6*time.Second,
		[]time.Duration{60 * time.Second, 90 * time.Second, 120 * time.Second})
}

func TestEscalation_StageOrder(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)
	tick := 10 * time.Second

	var actions []models.EnforcementAction
	for i := 0; i < 60; i++ { // 600 seconds off task
		now = now.Add(tick)
		if a := e.Accrue(tick, false, now); a != models.ActionNone {
			actions = append(actions, a)
		}
	}

	want := []models.EnforcementAction{models.ActionNudge, models.ActionRedirect, models.ActionIntervention}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("action[%d] = %v, want %v", i, actions[i], want[i])
		}
	}
	if e.Stage() != models.StageIntervention {
		t.Errorf("final stage = %v, want intervention", e.Stage())
	}
}

func TestEscalation_EachBoundaryFiresOnce(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	if a := e.Accrue(40*time.Second, false, now); a != models.ActionNudge {
		t.Fatalf("crossing nudge boundary = %v, want nudge", a)
	}
	// Still above nudge, below redirect: no repeat action.
	if a := e.Accrue(10*time.Second, false, now.Add(10*time.Second)); a != models.ActionNone {
		t.Errorf("repeat poll past nudge = %v, want none", a)
	}
}

func TestEscalation_RevisitForcesRedirect(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	// Ten seconds of distraction is below every threshold, but a
	// revisited target escalates straight to redirect.
	if a := e.Accrue(10*time.Second, true, now); a != models.ActionRedirect {
		t.Errorf("revisit action = %v, want redirect", a)
	}
	if e.Stage() != models.StageRedirect {
		t.Errorf("stage = %v, want redirect", e.Stage())
	}
}

func TestEscalation_ForwardOnlyWhileRising(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	e.Accrue(10*time.Second, true, now) // redirect via revisit
	// More accrual above the nudge threshold must not step back down.
	if a := e.Accrue(30*time.Second, false, now.Add(10*time.Second)); a != models.ActionNone {
		t.Errorf("action = %v, want none (no backward transition)", a)
	}
	if e.Stage() != models.StageRedirect {
		t.Errorf("stage = %v, want still redirect", e.Stage())
	}
}

func TestEscalation_RelaxResetsStageAndDecays(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	e.Accrue(60*time.Second, false, now)
	if e.Stage() != models.StageNudge {
		t.Fatalf("stage = %v, want nudge", e.Stage())
	}

	// One on-task poll drops the stage immediately.
	e.Relax(2*time.Second, now.Add(10*time.Second))
	if e.Stage() != models.StageRelevant {
		t.Errorf("stage after relax = %v, want relevant", e.Stage())
	}

	// The counter unwinds linearly over the decay window, not instantly.
	mid := e.Distraction()
	if mid <= 0 || mid >= 60 {
		t.Errorf("distraction after partial decay = %v, want between 0 and 60", mid)
	}
	for i := 0; i < 3; i++ {
		e.Relax(2*time.Second, now.Add(time.Duration(12+i*2)*time.Second))
	}
	if e.Distraction() != 0 {
		t.Errorf("distraction after full decay window = %v, want 0", e.Distraction())
	}
}

func TestEscalation_InterventionDurationsEscalate(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	durations := []time.Duration{}
	for i := 0; i < 4; i++ {
		e.Accrue(700*time.Second, false, now)
		durations = append(durations, e.InterventionDuration())
		// Return on task, then drift off again in the same block.
		for j := 0; j < 10; j++ {
			e.Relax(10*time.Second, now.Add(time.Duration(j)*10*time.Second))
		}
		now = now.Add(time.Hour)
	}

	want := []time.Duration{60 * time.Second, 90 * time.Second, 120 * time.Second, 120 * time.Second}
	for i := range want {
		if durations[i] != want[i] {
			t.Errorf("intervention %d duration = %v, want %v", i+1, durations[i], want[i])
		}
	}
}

func TestEscalation_SuppressWithholdsActions(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	e.Suppress(true)
	if a := e.Accrue(40*time.Second, false, now); a != models.ActionNone {
		t.Errorf("suppressed action = %v, want none", a)
	}
	// The counter and stage still advanced.
	if e.Stage() != models.StageNudge {
		t.Errorf("stage under suppression = %v, want nudge", e.Stage())
	}
}

func TestEscalation_Reset(t *testing.T) {
	e := newTestEscalation()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local)

	e.Accrue(700*time.Second, false, now)
	e.Suppress(true)
	e.Reset(testThresholds())

	if e.Stage() != models.StageRelevant {
		t.Errorf("stage after reset = %v, want relevant", e.Stage())
	}
	if e.Distraction() != 0 {
		t.Errorf("distraction after reset = %v, want 0", e.Distraction())
	}
	if e.Suppressed() {
		t.Error("suppression should clear on reset")
	}
}
