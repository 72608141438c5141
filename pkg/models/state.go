package models

// TimeState is the discrete state derived from wall-clock time and the
// day's block list. Exactly one state holds at any instant; it is never
// persisted, only recomputed.
type TimeState string

const (
	// StateDisabled means enforcement is switched off entirely.
	StateDisabled TimeState = "disabled"
	// StateNoPlan means the day has no blocks.
	StateNoPlan TimeState = "no-plan"
	// StateSnoozed means a temporary snooze override is active.
	StateSnoozed TimeState = "snoozed"
	// StateWorkBlock means now falls inside a deep- or light-focus block.
	StateWorkBlock TimeState = "in-work-block"
	// StateFreeBlock means now falls inside a free-time block.
	StateFreeBlock TimeState = "in-free-block"
	// StateUnplanned means the day has blocks but none covers now.
	StateUnplanned TimeState = "unplanned"
)

// Valid returns true if the state is a known value.
func (s TimeState) Valid() bool {
	switch s {
	case StateDisabled, StateNoPlan, StateSnoozed, StateWorkBlock,
		StateFreeBlock, StateUnplanned:
		return true
	default:
		return false
	}
}

// Enforced returns true for states in which the monitor polls the
// foreground target and drives escalation.
func (s TimeState) Enforced() bool {
	return s == StateWorkBlock
}

// Earns returns true for states in which on-task time accrues earned
// minutes.
func (s TimeState) Earns() bool {
	return s == StateWorkBlock
}
