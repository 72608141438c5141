package schedule

import (
	"errors"
	"testing"
	"time"

	"tempo/pkg/models"
)

// memStore keeps the persisted block list in memory.
type memStore struct {
	saved [][]models.TimeBlock
}

func (s *memStore) SaveSchedule(blocks []models.TimeBlock) error {
	copied := make([]models.TimeBlock, len(blocks))
	copy(copied, blocks)
	s.saved = append(s.saved, copied)
	return nil
}

// recorder captures observer notifications in order.
type recorder struct {
	name   string
	events *[]string
}

func (r *recorder) ScheduleChanged(ev ChangeEvent) {
	*r.events = append(*r.events, r.name+":"+string(ev.NewState))
}

func at(h, m int) time.Time {
	return time.Date(2026, 8, 31, h, m, 0, 0, time.Local)
}

func workBlock(id string, start, end time.Time) models.TimeBlock {
	return models.TimeBlock{
		ID:    id,
		Title: "Work",
		Kind:  models.KindDeepFocus,
		Start: start,
		End:   end,
	}
}

func newTestEngine(t *testing.T, blocks ...models.TimeBlock) *Engine {
	t.Helper()
	e := New(&memStore{}, false)
	if len(blocks) > 0 {
		if err := e.LoadDay(blocks); err != nil {
			t.Fatalf("LoadDay failed: %v", err)
		}
	}
	return e
}

func TestComputeState(t *testing.T) {
	work := workBlock("w", at(9, 0), at(11, 30))
	free := models.TimeBlock{ID: "f", Title: "Lunch", Kind: models.KindFreeTime, Start: at(12, 0), End: at(13, 0)}
	blocks := []models.TimeBlock{work, free}

	tests := []struct {
		name     string
		blocks   []models.TimeBlock
		snooze   time.Time
		disabled bool
		now      time.Time
		want     models.TimeState
	}{
		{"disabled wins over everything", blocks, at(23, 0), true, at(10, 0), models.StateDisabled},
		{"no blocks", nil, time.Time{}, false, at(10, 0), models.StateNoPlan},
		{"snoozed inside a work block", blocks, at(10, 30), false, at(10, 0), models.StateSnoozed},
		{"expired snooze", blocks, at(9, 30), false, at(10, 0), models.StateWorkBlock},
		{"inside work block", blocks, time.Time{}, false, at(9, 0), models.StateWorkBlock},
		{"inside free block", blocks, time.Time{}, false, at(12, 30), models.StateFreeBlock},
		{"between blocks", blocks, time.Time{}, false, at(11, 45), models.StateUnplanned},
		{"at work block end", blocks, time.Time{}, false, at(11, 30), models.StateUnplanned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ComputeState(tt.blocks, tt.snooze, tt.disabled, tt.now)
			if got != tt.want {
				t.Errorf("ComputeState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTick_NotifiesOncePerTransition(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))

	var events []string
	e.Register(&recorder{name: "first", events: &events})
	e.Register(&recorder{name: "second", events: &events})

	e.Tick(at(8, 0))  // no-plan -> unplanned
	e.Tick(at(8, 30)) // quiet
	e.Tick(at(9, 0))  // -> in-work-block
	e.Tick(at(9, 10)) // quiet
	e.Tick(at(11, 30)) // -> unplanned

	want := []string{
		"first:unplanned", "second:unplanned",
		"first:in-work-block", "second:in-work-block",
		"first:unplanned", "second:unplanned",
	}
	if len(events) != len(want) {
		t.Fatalf("got %d notifications %v, want %d", len(events), events, len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("notification[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestTick_BlockChangedBetweenAdjacentBlocks(t *testing.T) {
	first := workBlock("a", at(9, 0), at(10, 0))
	second := workBlock("b", at(10, 0), at(11, 0))
	e := newTestEngine(t, first, second)

	var got []ChangeEvent
	e.Register(observerFunc(func(ev ChangeEvent) { got = append(got, ev) }))

	e.Tick(at(9, 30))
	e.Tick(at(10, 30))

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Same state, different block: still a notification with BlockChanged.
	if got[1].NewState != models.StateWorkBlock || !got[1].BlockChanged {
		t.Errorf("adjacent block transition = %+v, want in-work-block with BlockChanged", got[1])
	}
	if got[1].Block == nil || got[1].Block.ID != "b" {
		t.Errorf("event block = %+v, want block b", got[1].Block)
	}
}

type observerFunc func(ChangeEvent)

func (f observerFunc) ScheduleChanged(ev ChangeEvent) { f(ev) }

func TestUpdateBlock(t *testing.T) {
	newTitle := "Renamed"
	newStart := at(9, 30)
	earlyEnd := at(9, 45)
	shortEnd := at(9, 10)
	pastStart := at(8, 0)

	tests := []struct {
		name    string
		now     time.Time
		patch   BlockPatch
		wantErr error
	}{
		{"title edit on past block", at(12, 0), BlockPatch{Title: &newTitle}, nil},
		{"time edit on past block", at(12, 0), BlockPatch{End: &earlyEnd}, ErrPastBlock},
		{"start edit while in progress", at(10, 0), BlockPatch{Start: &newStart}, ErrInProgressStart},
		{"end before now while in progress", at(10, 0), BlockPatch{End: &earlyEnd}, ErrElapsedEnd},
		{"end edit while in progress", at(9, 20), BlockPatch{End: &earlyEnd}, nil},
		{"shrink below minimum", at(8, 0), BlockPatch{End: &shortEnd}, ErrTooShort},
		{"future start edit", at(8, 0), BlockPatch{Start: &pastStart}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))
			err := e.UpdateBlock("w", tt.patch, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateBlock() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateBlock_RejectsOverlap(t *testing.T) {
	e := newTestEngine(t,
		workBlock("a", at(9, 0), at(10, 0)),
		workBlock("b", at(10, 30), at(11, 30)),
	)

	lateEnd := at(10, 45)
	err := e.UpdateBlock("a", BlockPatch{End: &lateEnd}, at(8, 0))
	if !errors.Is(err, ErrOverlap) {
		t.Errorf("UpdateBlock() error = %v, want ErrOverlap", err)
	}
}

func TestUpdateBlock_UnknownBlock(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))
	if err := e.UpdateBlock("missing", BlockPatch{}, at(8, 0)); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("UpdateBlock() error = %v, want ErrBlockNotFound", err)
	}
}

func TestCreateBlock(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))

	id, err := e.CreateBlock(models.TimeBlock{
		Title: "Afternoon",
		Kind:  models.KindLightFocus,
		Start: at(13, 0),
		End:   at(14, 0),
	}, at(8, 0))
	if err != nil {
		t.Fatalf("CreateBlock failed: %v", err)
	}
	if id == "" {
		t.Error("CreateBlock returned empty id")
	}

	_, err = e.CreateBlock(models.TimeBlock{
		Title: "Clash",
		Kind:  models.KindLightFocus,
		Start: at(10, 0),
		End:   at(11, 0),
	}, at(8, 0))
	if !errors.Is(err, ErrOverlap) {
		t.Errorf("overlapping CreateBlock error = %v, want ErrOverlap", err)
	}

	_, err = e.CreateBlock(models.TimeBlock{
		Title: "Tiny",
		Kind:  models.KindLightFocus,
		Start: at(15, 0),
		End:   at(15, 10),
	}, at(8, 0))
	if !errors.Is(err, ErrTooShort) {
		t.Errorf("short CreateBlock error = %v, want ErrTooShort", err)
	}
}

func TestDeleteBlock(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))

	if err := e.DeleteBlock("w", at(10, 0)); !errors.Is(err, ErrPastBlock) {
		t.Errorf("deleting in-progress block error = %v, want ErrPastBlock", err)
	}
	if err := e.DeleteBlock("w", at(8, 0)); err != nil {
		t.Errorf("deleting future block failed: %v", err)
	}
	if got := len(e.Blocks()); got != 0 {
		t.Errorf("blocks remaining = %d, want 0", got)
	}
}

func TestPushBlockStart(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))

	if err := e.PushBlockStart("w", 30, at(8, 0)); err != nil {
		t.Fatalf("PushBlockStart failed: %v", err)
	}
	blocks := e.Blocks()
	if !blocks[0].Start.Equal(at(9, 30)) {
		t.Errorf("start = %v, want 09:30", blocks[0].Start)
	}
	if !blocks[0].End.Equal(at(11, 30)) {
		t.Errorf("end moved to %v, want unchanged 11:30", blocks[0].End)
	}

	if err := e.PushBlockStart("w", 15, at(10, 0)); !errors.Is(err, ErrInProgressStart) {
		t.Errorf("pushing in-progress block error = %v, want ErrInProgressStart", err)
	}
}

func TestLocked_RejectsMutation(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))
	e.SetLocked(true)

	title := "New"
	if err := e.UpdateBlock("w", BlockPatch{Title: &title}, at(8, 0)); !errors.Is(err, ErrLocked) {
		t.Errorf("UpdateBlock under lock error = %v, want ErrLocked", err)
	}
	if _, err := e.CreateBlock(workBlock("", at(13, 0), at(14, 0)), at(8, 0)); !errors.Is(err, ErrLocked) {
		t.Errorf("CreateBlock under lock error = %v, want ErrLocked", err)
	}
	if err := e.DeleteBlock("w", at(8, 0)); !errors.Is(err, ErrLocked) {
		t.Errorf("DeleteBlock under lock error = %v, want ErrLocked", err)
	}
	if err := e.LoadDay(nil); !errors.Is(err, ErrLocked) {
		t.Errorf("LoadDay under lock error = %v, want ErrLocked", err)
	}
}

func TestSnooze(t *testing.T) {
	e := newTestEngine(t, workBlock("w", at(9, 0), at(11, 30)))

	if err := e.Snooze(at(9, 0), 30*time.Minute); err != nil {
		t.Fatalf("Snooze failed: %v", err)
	}
	if got := e.RecomputeState(at(9, 15)); got != models.StateSnoozed {
		t.Errorf("state during snooze = %v, want snoozed", got)
	}

	if err := e.Snooze(at(9, 15), 30*time.Minute); !errors.Is(err, ErrSnoozeActive) {
		t.Errorf("second Snooze error = %v, want ErrSnoozeActive", err)
	}

	if got := e.RecomputeState(at(9, 45)); got != models.StateWorkBlock {
		t.Errorf("state after snooze expiry = %v, want in-work-block", got)
	}

	e.Unsnooze()
	if !e.SnoozedUntil().IsZero() {
		t.Error("SnoozedUntil should be zero after Unsnooze")
	}
}

func TestLoadDay_Validation(t *testing.T) {
	e := newTestEngine(t)

	err := e.LoadDay([]models.TimeBlock{
		workBlock("a", at(9, 0), at(10, 0)),
		workBlock("b", at(9, 30), at(10, 30)),
	})
	if !errors.Is(err, ErrOverlap) {
		t.Errorf("overlapping LoadDay error = %v, want ErrOverlap", err)
	}

	if err := e.LoadDay([]models.TimeBlock{workBlock("a", at(9, 0), at(9, 5))}); !errors.Is(err, ErrTooShort) {
		t.Errorf("short LoadDay error = %v, want ErrTooShort", err)
	}
}
