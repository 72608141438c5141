// Package ledger is the single source of truth for the day's earned
// and spent minutes. Every mutation is serialized behind one mutex and
// persisted before it returns success.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	tempostore "tempo/internal/store"
	"tempo/pkg/models"
)

// ErrLimitExceeded is returned when the daily partner-grant cap is
// reached. The ledger is left unchanged.
var ErrLimitExceeded = errors.New("ledger: daily partner grant limit reached")

// Store persists ledger snapshots. Satisfied by store.FileStore.
type Store interface {
	SaveLedger(day *models.LedgerDay) error
	LoadLedger() (*models.LedgerDay, error)
}

// Archiver receives completed days at rollover. Satisfied by
// store.History.
type Archiver interface {
	ArchiveDay(day *models.LedgerDay) error
}

// Events receives ledger notifications. The hub implements this to
// broadcast updates; a nil Events is a no-op.
type Events interface {
	// LedgerUpdated fires after any successful mutation.
	LedgerUpdated(day models.LedgerDay)
	// PoolDepleted fires exactly once per depletion, when a spend
	// clamps the balance to zero. It does not re-fire on further
	// spend attempts while the balance is still zero.
	PoolDepleted(reason string)
}

// Rates parameterizes the earning economy.
type Rates struct {
	// StandardEarn is earned minutes per on-task minute.
	StandardEarn float64
	// DeepFocusEarn is the boosted rate during a held deep-focus window.
	DeepFocusEarn float64
	// WelcomeCreditMinutes is the one-time first-day credit.
	WelcomeCreditMinutes float64
	// PartnerGrantMinutes is the size of one partner grant.
	PartnerGrantMinutes float64
	// PartnerGrantsPerDay caps partner grants per day.
	PartnerGrantsPerDay int
}

// Manager owns the mutable ledger state. All mutation operations are
// serialized relative to each other; earn and spend both add to a
// shared non-negative quantity and must never interleave.
type Manager struct {
	mu sync.Mutex

	day      *models.LedgerDay
	depleted bool

	rates    Rates
	store    Store
	archiver Archiver
	events   Events
	now      func() time.Time
}

// New creates a ledger manager, restoring the persisted snapshot if one
// exists. The restored snapshot is rolled forward when it belongs to a
// previous day.
func New(rates Rates, store Store, archiver Archiver, now func() time.Time) (*Manager, error) {
	m := &Manager{
		rates:    rates,
		store:    store,
		archiver: archiver,
		now:      now,
	}

	day, err := store.LoadLedger()
	if err != nil && !errors.Is(err, tempostore.ErrNotFound) {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	if day == nil {
		today := midnight(now())
		day = &models.LedgerDay{Date: today, FirstSeen: today}
	}
	m.day = day
	m.rolloverLocked()

	return m, nil
}

// SetEvents wires the notification sink. Must be called before the
// daemon starts ticking.
func (m *Manager) SetEvents(ev Events) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = ev
}

// Snapshot returns a copy of the current day's ledger.
func (m *Manager) Snapshot() models.LedgerDay {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return *m.day
}

// TickEarn credits seconds of on-task work. The caller asserts the
// current time-state is a work block and the foreground target is not
// a restricted platform; deepFocus selects the boosted rate. Returns
// the minutes credited.
func (m *Manager) TickEarn(seconds float64, deepFocus bool) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	rate := m.rates.StandardEarn
	if deepFocus {
		rate = m.rates.DeepFocusEarn
	}
	earned := seconds / 60 * rate
	if earned <= 0 {
		return 0, nil
	}

	m.day.EarnedMinutes += earned
	if m.day.Available() > 0 {
		m.depleted = false
	}
	if err := m.persistLocked(); err != nil {
		m.day.EarnedMinutes -= earned
		return 0, err
	}
	m.notifyLocked()
	return earned, nil
}

// TickSpend debits seconds of restricted browsing at the given cost
// multiplier. The balance is clamped at zero; the first spend that
// clamps fires a single pool-depleted event.
func (m *Manager) TickSpend(seconds float64, costMultiplier float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	cost := seconds / 60 * costMultiplier
	if cost <= 0 {
		return nil
	}

	before := m.day.UsedMinutes
	clamped := false
	if cost > m.day.Available() {
		cost = m.day.Available()
		clamped = true
	}
	m.day.UsedMinutes += cost

	if err := m.persistLocked(); err != nil {
		m.day.UsedMinutes = before
		return err
	}

	m.notifyLocked()
	if clamped && !m.depleted {
		m.depleted = true
		if m.events != nil {
			m.events.PoolDepleted("balance-exhausted")
		}
	}
	return nil
}

// GrantWelcomeCredit applies the one-time first-day credit. Idempotent
// for the account's lifetime: repeated calls, including across day
// changes on the first day, grant nothing after the first.
func (m *Manager) GrantWelcomeCredit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	if m.day.WelcomeGranted || !m.day.FirstDay() {
		return nil
	}

	m.day.EarnedMinutes += m.rates.WelcomeCreditMinutes
	m.day.WelcomeGranted = true
	m.depleted = false

	if err := m.persistLocked(); err != nil {
		m.day.EarnedMinutes -= m.rates.WelcomeCreditMinutes
		m.day.WelcomeGranted = false
		return err
	}
	m.notifyLocked()
	return nil
}

// ApplyPartnerGrant credits one partner time grant. Fails with
// ErrLimitExceeded once the daily cap is reached, leaving the ledger
// unchanged.
func (m *Manager) ApplyPartnerGrant() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	if m.day.PartnerRequests >= m.rates.PartnerGrantsPerDay {
		return ErrLimitExceeded
	}

	m.day.EarnedMinutes += m.rates.PartnerGrantMinutes
	m.day.PartnerRequests++
	m.depleted = false

	if err := m.persistLocked(); err != nil {
		m.day.EarnedMinutes -= m.rates.PartnerGrantMinutes
		m.day.PartnerRequests--
		return err
	}
	m.notifyLocked()
	return nil
}

// RecordVisit increments the per-block distraction visit counter and
// returns the new count.
func (m *Manager) RecordVisit() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	m.day.BlockVisits++
	if err := m.persistLocked(); err != nil {
		m.day.BlockVisits--
		return 0, err
	}
	return m.day.BlockVisits, nil
}

// OnBlockChanged resets the per-block visit counter. Earned and used
// totals are untouched.
func (m *Manager) OnBlockChanged() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()

	if m.day.BlockVisits == 0 {
		return nil
	}
	m.day.BlockVisits = 0
	return m.persistLocked()
}

// OnDayChanged forces a rollover check. Called by the daemon's
// midnight-crossing tick; rollover also happens lazily on first access
// each day.
func (m *Manager) OnDayChanged() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.persistLocked()
}

// rolloverLocked archives and resets the day when the calendar day has
// changed since the snapshot was taken. WelcomeGranted and FirstSeen
// survive resets; everything else returns to zero.
func (m *Manager) rolloverLocked() {
	today := midnight(m.now())
	if m.day.Date.Equal(today) {
		return
	}

	if m.archiver != nil && (m.day.EarnedMinutes > 0 || m.day.UsedMinutes > 0) {
		// Archive failures are not fatal; the new day proceeds.
		_ = m.archiver.ArchiveDay(m.day)
	}

	m.day = &models.LedgerDay{
		Date:           today,
		FirstSeen:      m.day.FirstSeen,
		WelcomeGranted: m.day.WelcomeGranted,
	}
	m.depleted = false
}

func (m *Manager) persistLocked() error {
	m.day.UpdatedAt = m.now()
	if err := m.store.SaveLedger(m.day); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func (m *Manager) notifyLocked() {
	if m.events != nil {
		m.events.LedgerUpdated(*m.day)
	}
}

func midnight(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

