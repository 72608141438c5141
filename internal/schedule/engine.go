// Package schedule owns the day's time blocks and derives the current
// time-state from wall-clock time. State transitions are fanned out to
// registered observers in a fixed order.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempo/pkg/models"
)

// Validation errors returned by block edit operations. Edits are
// rejected synchronously with no partial application.
var (
	// ErrBlockNotFound means no block has the given id.
	ErrBlockNotFound = errors.New("schedule: block not found")
	// ErrPastBlock means the block's window has fully elapsed and only
	// title/description edits are allowed.
	ErrPastBlock = errors.New("schedule: block has ended")
	// ErrOverlap means the edit would overlap another block.
	ErrOverlap = errors.New("schedule: blocks overlap")
	// ErrTooShort means the resulting duration would be under the minimum.
	ErrTooShort = errors.New("schedule: block shorter than 15 minutes")
	// ErrInProgressStart means the start time of an in-progress block
	// cannot change.
	ErrInProgressStart = errors.New("schedule: cannot move start of block in progress")
	// ErrElapsedEnd means the new end would cut off time already elapsed.
	ErrElapsedEnd = errors.New("schedule: end before elapsed portion")
	// ErrLocked means lock mode is on and schedule edits are blocked.
	ErrLocked = errors.New("schedule: day is locked")
	// ErrSnoozeActive means a snooze is already running.
	ErrSnoozeActive = errors.New("schedule: snooze already active")
)

// MinBlockDuration is the shortest block the engine accepts.
const MinBlockDuration = 15 * time.Minute

// ChangeEvent describes one observed schedule transition.
type ChangeEvent struct {
	// OldState and NewState bracket the transition.
	OldState models.TimeState
	NewState models.TimeState
	// Block is the newly active block, nil outside any block.
	Block *models.TimeBlock
	// BlockChanged is true when the active block's identity changed,
	// including transitions between two adjacent blocks of equal state.
	BlockChanged bool
	// At is the wall-clock time of the transition.
	At time.Time
}

// Observer receives schedule transitions. Observers are notified in
// registration order; registration order is a contract (ledger reset
// first, then monitor re-evaluation, then hub broadcast).
type Observer interface {
	ScheduleChanged(ev ChangeEvent)
}

// Store persists the block list. Satisfied by store.FileStore.
type Store interface {
	SaveSchedule(blocks []models.TimeBlock) error
}

// Engine owns the day's ordered block list and the derived time-state.
// All mutation goes through validated operations; the block list is
// never replaced wholesale.
type Engine struct {
	mu sync.Mutex

	blocks      []models.TimeBlock
	snoozeUntil time.Time
	disabled    bool
	locked      bool

	lastState   models.TimeState
	lastBlockID string
	observers   []Observer

	store Store
}

// New creates an engine with no plan loaded.
func New(store Store, disabled bool) *Engine {
	return &Engine{
		store:     store,
		disabled:  disabled,
		lastState: models.StateNoPlan,
	}
}

// Register appends an observer to the ordered notification chain.
func (e *Engine) Register(obs Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, obs)
}

// SetLocked toggles lock mode. While locked, all block mutations are
// rejected with ErrLocked.
func (e *Engine) SetLocked(locked bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = locked
}

// Locked reports the lock-mode flag.
func (e *Engine) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

// LoadDay replaces the day's plan with the given blocks after
// validating them as a set. Used at startup and by the plan command.
func (e *Engine) LoadDay(blocks []models.TimeBlock) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return ErrLocked
	}

	sorted := make([]models.TimeBlock, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for i := range sorted {
		if sorted[i].ID == "" {
			sorted[i].ID = uuid.New().String()
		}
		if !sorted[i].Kind.Valid() {
			return fmt.Errorf("schedule: block %q has unknown kind %q", sorted[i].Title, sorted[i].Kind)
		}
		if sorted[i].Duration() < MinBlockDuration {
			return ErrTooShort
		}
		if i > 0 && sorted[i-1].End.After(sorted[i].Start) {
			return ErrOverlap
		}
	}

	e.blocks = sorted
	return e.persistLocked()
}

// Blocks returns a copy of the current block list.
func (e *Engine) Blocks() []models.TimeBlock {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.TimeBlock, len(e.blocks))
	copy(out, e.blocks)
	return out
}

// ComputeState derives the discrete time-state for now. Pure: the same
// inputs always produce the same state.
func ComputeState(blocks []models.TimeBlock, snoozeUntil time.Time, disabled bool, now time.Time) (models.TimeState, *models.TimeBlock) {
	if disabled {
		return models.StateDisabled, nil
	}
	if len(blocks) == 0 {
		return models.StateNoPlan, nil
	}
	if now.Before(snoozeUntil) {
		return models.StateSnoozed, nil
	}
	for i := range blocks {
		if blocks[i].Contains(now) {
			b := blocks[i]
			if b.Kind == models.KindFreeTime {
				return models.StateFreeBlock, &b
			}
			return models.StateWorkBlock, &b
		}
	}
	return models.StateUnplanned, nil
}

// RecomputeState derives the state for now without notifying observers.
func (e *Engine) RecomputeState(now time.Time) models.TimeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, _ := ComputeState(e.blocks, e.snoozeUntil, e.disabled, now)
	return state
}

// CurrentBlock returns the block containing now, or nil.
func (e *Engine) CurrentBlock(now time.Time) *models.TimeBlock {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, block := ComputeState(e.blocks, e.snoozeUntil, e.disabled, now)
	return block
}

// Tick recomputes the state for now and, if it differs from the last
// observed state or the active block changed, notifies observers once
// in registration order. Safe to call on every poll; quiet polls do
// not renotify.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()

	state, block := ComputeState(e.blocks, e.snoozeUntil, e.disabled, now)
	blockID := ""
	if block != nil {
		blockID = block.ID
	}

	if state == e.lastState && blockID == e.lastBlockID {
		e.mu.Unlock()
		return
	}

	ev := ChangeEvent{
		OldState:     e.lastState,
		NewState:     state,
		Block:        block,
		BlockChanged: blockID != e.lastBlockID,
		At:           now,
	}
	e.lastState = state
	e.lastBlockID = blockID
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	// Observers run outside the engine lock so they may call back into
	// the engine. Order is the contract from the registration sequence.
	for _, obs := range observers {
		obs.ScheduleChanged(ev)
	}
}

// State returns the last state observed by Tick.
func (e *Engine) State() models.TimeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastState
}

// BlockPatch carries the editable fields of a block. Nil fields are
// left unchanged.
type BlockPatch struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Kind        *models.BlockKind
}

// UpdateBlock applies a validated patch to one block.
//
// Rules: blocks whose end has passed accept only title/description
// edits; an in-progress block's start time cannot change and its end
// cannot be moved below the already-elapsed portion; any resulting
// duration must be at least 15 minutes; the edited window must not
// overlap another block.
func (e *Engine) UpdateBlock(id string, patch BlockPatch, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return ErrLocked
	}

	idx := e.indexLocked(id)
	if idx < 0 {
		return ErrBlockNotFound
	}
	block := e.blocks[idx]

	timeEdit := patch.Start != nil || patch.End != nil || patch.Kind != nil
	if block.Ended(now) && timeEdit {
		return ErrPastBlock
	}
	if block.InProgress(now) && patch.Start != nil && !patch.Start.Equal(block.Start) {
		return ErrInProgressStart
	}

	updated := block
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Start != nil {
		updated.Start = *patch.Start
	}
	if patch.End != nil {
		updated.End = *patch.End
	}
	if patch.Kind != nil {
		if !patch.Kind.Valid() {
			return fmt.Errorf("schedule: unknown kind %q", *patch.Kind)
		}
		updated.Kind = *patch.Kind
	}

	if timeEdit {
		if updated.Duration() < MinBlockDuration {
			return ErrTooShort
		}
		if block.InProgress(now) && updated.End.Before(now) {
			return ErrElapsedEnd
		}
		for i := range e.blocks {
			if i == idx {
				continue
			}
			if updated.Overlaps(&e.blocks[i]) {
				return ErrOverlap
			}
		}
	}

	e.blocks[idx] = updated
	e.sortLocked()
	return e.persistLocked()
}

// CreateBlock adds a new block to the day.
func (e *Engine) CreateBlock(block models.TimeBlock, now time.Time) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return "", ErrLocked
	}
	if !block.Kind.Valid() {
		return "", fmt.Errorf("schedule: unknown kind %q", block.Kind)
	}
	if block.Duration() < MinBlockDuration {
		return "", ErrTooShort
	}
	for i := range e.blocks {
		if block.Overlaps(&e.blocks[i]) {
			return "", ErrOverlap
		}
	}

	if block.ID == "" {
		block.ID = uuid.New().String()
	}
	e.blocks = append(e.blocks, block)
	e.sortLocked()
	return block.ID, e.persistLocked()
}

// DeleteBlock removes a block that has not yet started.
func (e *Engine) DeleteBlock(id string, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return ErrLocked
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		return ErrBlockNotFound
	}
	if e.blocks[idx].Ended(now) || e.blocks[idx].InProgress(now) {
		return ErrPastBlock
	}

	e.blocks = append(e.blocks[:idx], e.blocks[idx+1:]...)
	return e.persistLocked()
}

// PushBlockStart delays a not-yet-started block's start by the given
// minutes, keeping its end fixed.
func (e *Engine) PushBlockStart(id string, minutes int, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return ErrLocked
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		return ErrBlockNotFound
	}
	block := e.blocks[idx]
	if block.Ended(now) {
		return ErrPastBlock
	}
	if block.InProgress(now) {
		return ErrInProgressStart
	}

	updated := block
	updated.Start = block.Start.Add(time.Duration(minutes) * time.Minute)
	if updated.Duration() < MinBlockDuration {
		return ErrTooShort
	}
	for i := range e.blocks {
		if i == idx {
			continue
		}
		if updated.Overlaps(&e.blocks[i]) {
			return ErrOverlap
		}
	}

	e.blocks[idx] = updated
	e.sortLocked()
	return e.persistLocked()
}

// Snooze starts a snooze override ending at now+d. At most one snooze
// may be active.
func (e *Engine) Snooze(now time.Time, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Before(e.snoozeUntil) {
		return ErrSnoozeActive
	}
	e.snoozeUntil = now.Add(d)
	return nil
}

// Unsnooze clears any active snooze.
func (e *Engine) Unsnooze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snoozeUntil = time.Time{}
}

// SnoozedUntil returns the snooze expiry, zero when none is active.
func (e *Engine) SnoozedUntil() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snoozeUntil
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.blocks {
		if e.blocks[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) sortLocked() {
	sort.Slice(e.blocks, func(i, j int) bool { return e.blocks[i].Start.Before(e.blocks[j].Start) })
}

func (e *Engine) persistLocked() error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveSchedule(e.blocks); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	return nil
}
