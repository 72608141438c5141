package models

import "time"

// EnforcementAction is the action the monitor took for one poll.
type EnforcementAction string

const (
	// ActionNone means the target was on-task; nothing happened.
	ActionNone EnforcementAction = "none"
	// ActionNudge shows the gentle first-stage reminder.
	ActionNudge EnforcementAction = "nudge"
	// ActionRedirect starts the redirect-and-desaturate stage.
	ActionRedirect EnforcementAction = "redirect"
	// ActionIntervention triggers the full-screen intervention.
	ActionIntervention EnforcementAction = "intervention"
	// ActionSkipped means the poll was not enforced (restricted
	// platform, or enforcement suppressed).
	ActionSkipped EnforcementAction = "skipped"
)

// EscalationStage orders the monitor's per-target severity levels.
type EscalationStage int

const (
	// StageRelevant is the resting stage; the target is on-task.
	StageRelevant EscalationStage = iota
	// StageNudge is reached after sustained brief distraction.
	StageNudge
	// StageRedirect adds redirection and screen desaturation.
	StageRedirect
	// StageIntervention is the terminal stage with a blocking prompt.
	StageIntervention
)

// String returns the stage name used in logs and wire messages.
func (s EscalationStage) String() string {
	switch s {
	case StageRelevant:
		return "relevant"
	case StageNudge:
		return "nudge"
	case StageRedirect:
		return "redirect"
	case StageIntervention:
		return "intervention"
	default:
		return "unknown"
	}
}

// RelevanceAssessment is one append-only record of a scoring decision.
// Records are never mutated after creation.
type RelevanceAssessment struct {
	// ID is the unique identifier for this assessment.
	ID string `json:"id"`
	// Target is the scored foreground label (app name, or tab title).
	Target string `json:"target"`
	// Intention is the active block's intention text at scoring time.
	Intention string `json:"intention"`
	// Relevant is the scoring verdict.
	Relevant bool `json:"relevant"`
	// Confidence is the scorer's confidence in [0,1]. Zero on any
	// fail-closed result.
	Confidence float64 `json:"confidence"`
	// Reason is the scorer's free-text explanation.
	Reason string `json:"reason,omitempty"`
	// Source names the pipeline stage that produced the verdict:
	// "keyword", "allowlist", "cache", "model", "always-allowed",
	// or "fail-closed".
	Source string `json:"source"`
	// Action is the enforcement action taken on this verdict.
	Action EnforcementAction `json:"action"`
	// CreatedAt is when the assessment was recorded.
	CreatedAt time.Time `json:"created_at"`
}
