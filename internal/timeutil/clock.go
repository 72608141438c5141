// Package timeutil provides a small clock abstraction so the schedule
// engine, ledger, and monitor can be tested with deterministic time.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts time.Now and ticker creation. Production code uses
// Real(); tests use a Fake with manual advancement.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// NewTicker returns a channel delivering ticks at the given
	// interval and a stop function.
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Fake is a manually controlled Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock pinned to the given time.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set pins the fake to a specific time.
func (f *Fake) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Advance moves the fake forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// NewTicker on a Fake returns a channel that never fires on its own;
// tests drive components directly instead of waiting on tickers.
func (f *Fake) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	return ch, func() {}
}
