package monitor

import "time"

type focusEntry struct {
	at       time.Time
	relevant bool
}

// FocusWindow is the rolling record of scored polls used for
// deep-focus detection. Deep focus holds only when the window spans
// its full configured length and every poll inside it was relevant;
// one off-task poll invalidates it until a clean window accrues again.
// A gap in sampling longer than maxGap breaks the window the same way:
// unsampled time is not on-task time.
type FocusWindow struct {
	length  time.Duration
	maxGap  time.Duration
	entries []focusEntry
}

// NewFocusWindow creates a window of the given length. maxGap bounds
// the silence between consecutive polls; zero disables the gap check.
func NewFocusWindow(length, maxGap time.Duration) *FocusWindow {
	return &FocusWindow{length: length, maxGap: maxGap}
}

// Add appends one scored poll and prunes entries that have aged out.
// One entry older than the window is retained as the span anchor so
// the window can prove it covers its full length.
func (w *FocusWindow) Add(at time.Time, relevant bool) {
	if n := len(w.entries); n > 0 && w.maxGap > 0 {
		if at.Sub(w.entries[n-1].at) > w.maxGap {
			// Sampling stopped (snooze, free block, daemon pause);
			// the streak restarts from this poll.
			w.entries = w.entries[:0]
		}
	}
	w.entries = append(w.entries, focusEntry{at: at, relevant: relevant})
	w.prune(at)
}

func (w *FocusWindow) prune(now time.Time) {
	boundary := now.Add(-w.length)
	cut := 0
	for i, e := range w.entries {
		if !e.at.Before(boundary) {
			break
		}
		cut = i
	}
	w.entries = w.entries[cut:]
}

// DeepFocus reports whether the deep-focus bonus applies at now: the
// oldest retained entry is at least the window length old, and every
// entry inside the window is relevant.
func (w *FocusWindow) DeepFocus(now time.Time) bool {
	if len(w.entries) == 0 {
		return false
	}

	boundary := now.Add(-w.length)
	if w.entries[0].at.After(boundary) {
		// Not enough history yet.
		return false
	}
	for _, e := range w.entries {
		if e.at.Before(boundary) {
			// Span anchor, outside the window.
			continue
		}
		if !e.relevant {
			return false
		}
	}
	return true
}

// Reset clears all history.
func (w *FocusWindow) Reset() {
	w.entries = nil
}
