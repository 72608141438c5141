package models

import "time"

// LedgerDay is the persisted snapshot of one calendar day's earned-time
// accounting. Earned and Used are running totals and never decrease
// within a day; Available is always derived, never stored negative.
type LedgerDay struct {
	// Date is the calendar day this ledger covers, in the user's local
	// zone, truncated to midnight.
	Date time.Time `json:"date"`
	// EarnedMinutes is the running total of all earning today.
	EarnedMinutes float64 `json:"earned_minutes"`
	// UsedMinutes is the running total of all spending today.
	UsedMinutes float64 `json:"used_minutes"`
	// BlockVisits counts distraction visits within the current block.
	// Reset on every block change.
	BlockVisits int `json:"block_visits"`
	// PartnerRequests counts partner time grants today.
	PartnerRequests int `json:"partner_requests"`
	// WelcomeGranted records that the one-time welcome credit has been
	// applied to this account. Survives day resets.
	WelcomeGranted bool `json:"welcome_granted"`
	// FirstSeen is when the account's first ledger day was created.
	FirstSeen time.Time `json:"first_seen"`
	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Available returns the spendable balance, floored at zero.
func (d *LedgerDay) Available() float64 {
	avail := d.EarnedMinutes - d.UsedMinutes
	if avail < 0 {
		return 0
	}
	return avail
}

// FirstDay reports whether this ledger day is the account's first.
func (d *LedgerDay) FirstDay() bool {
	return sameDay(d.Date, d.FirstSeen)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// BlockFocusStats accumulates per-block focus accounting. A record is
// created when its block becomes active and finalized, but retained,
// when the block ends.
type BlockFocusStats struct {
	// BlockID identifies the block these stats belong to.
	BlockID string `json:"block_id"`
	// BlockTitle is the block's title at the time the stats were taken.
	BlockTitle string `json:"block_title"`
	// Kind is the block's kind.
	Kind BlockKind `json:"kind"`
	// OnTaskPolls counts polls judged relevant.
	OnTaskPolls int `json:"on_task_polls"`
	// TotalPolls counts all scored polls.
	TotalPolls int `json:"total_polls"`
	// EarnedMinutes is the earning attributed to this block.
	EarnedMinutes float64 `json:"earned_minutes"`
	// StartedAt is when the block became active.
	StartedAt time.Time `json:"started_at"`
	// FinalizedAt is set when the block ended. Zero while active.
	FinalizedAt time.Time `json:"finalized_at,omitempty"`
}

// FocusScore returns the on-task fraction in [0,1], or 0 when no polls
// were recorded.
func (s *BlockFocusStats) FocusScore() float64 {
	if s.TotalPolls == 0 {
		return 0
	}
	return float64(s.OnTaskPolls) / float64(s.TotalPolls)
}
