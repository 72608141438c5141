// Package models contains the shared domain types for tempo: schedule
// blocks, time states, ledger snapshots, and relevance assessments.
package models

import "time"

// BlockKind represents the category of a scheduled time block.
type BlockKind string

const (
	// KindDeepFocus is a work block earning the boosted rate with the
	// strictest enforcement thresholds.
	KindDeepFocus BlockKind = "deep-focus"
	// KindLightFocus is a work block with standard earning and more
	// lenient enforcement.
	KindLightFocus BlockKind = "light-focus"
	// KindFreeTime is leisure time with no enforcement and no earning.
	KindFreeTime BlockKind = "free-time"
)

// Valid returns true if the kind is a known value.
func (k BlockKind) Valid() bool {
	switch k {
	case KindDeepFocus, KindLightFocus, KindFreeTime:
		return true
	default:
		return false
	}
}

// IsWork returns true for block kinds that are enforced and earn time.
func (k BlockKind) IsWork() bool {
	return k == KindDeepFocus || k == KindLightFocus
}

// CostMultiplier returns the spend multiplier applied to earned-time
// usage during a block of this kind. Free time is free, light focus
// spends at face value, deep focus doubles the cost.
func (k BlockKind) CostMultiplier() float64 {
	switch k {
	case KindFreeTime:
		return 0
	case KindLightFocus:
		return 1
	case KindDeepFocus:
		return 2
	default:
		return 1
	}
}

// TimeBlock is one scheduled window in a day plan. Blocks are owned by
// the schedule engine; once a block's window has fully elapsed only its
// title and description remain editable.
type TimeBlock struct {
	// ID is the stable identifier for this block.
	ID string `json:"id"`
	// Title is the short label shown for the block.
	Title string `json:"title"`
	// Description is free-text intention for the block, consumed by the
	// relevance scorer.
	Description string `json:"description,omitempty"`
	// Start is the block's start time.
	Start time.Time `json:"start"`
	// End is the block's end time.
	End time.Time `json:"end"`
	// Kind categorizes the block.
	Kind BlockKind `json:"kind"`
}

// Duration returns the block's total length.
func (b *TimeBlock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Contains reports whether now falls inside the block's window.
// The start is inclusive, the end exclusive.
func (b *TimeBlock) Contains(now time.Time) bool {
	return !now.Before(b.Start) && now.Before(b.End)
}

// Ended reports whether the block's window has fully elapsed.
func (b *TimeBlock) Ended(now time.Time) bool {
	return !now.Before(b.End)
}

// InProgress reports whether the block has started but not ended.
func (b *TimeBlock) InProgress(now time.Time) bool {
	return b.Contains(now)
}

// Overlaps reports whether two blocks share any part of their windows.
func (b *TimeBlock) Overlaps(other *TimeBlock) bool {
	return b.Start.Before(other.End) && other.Start.Before(b.End)
}

// Intention returns the text the scorer matches targets against:
// the description when present, otherwise the title.
func (b *TimeBlock) Intention() string {
	if b.Description != "" {
		return b.Description
	}
	return b.Title
}
