package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempo/internal/schedule"
	"tempo/internal/scorer"
	"tempo/internal/session"
	"tempo/pkg/models"
)

// Ledger is the slice of the ledger the hub drives.
type Ledger interface {
	Snapshot() models.LedgerDay
	TickSpend(seconds float64, costMultiplier float64) error
	ApplyPartnerGrant() error
}

// Scorer answers score, justification, and approval requests from
// clients.
type Scorer interface {
	Score(ctx context.Context, target, intention, description string) scorer.Result
	Justify(ctx context.Context, justification, intention string) scorer.JustificationResult
	Approve(target string)
}

// Schedule is the slice of the schedule engine the hub drives.
type Schedule interface {
	State() models.TimeState
	CurrentBlock(now time.Time) *models.TimeBlock
	Locked() bool
	Snooze(now time.Time, d time.Duration) error
	Unsnooze()
	PushBlockStart(id string, minutes int, now time.Time) error
}

// Suppressor pauses enforcement while an interactive prompt is open.
type Suppressor interface {
	Suppress(on bool)
}

// Logger is the minimal logging dependency.
type Logger interface {
	Log(format string, args ...interface{})
}

// SocketPath returns the per-user socket location: deterministic from
// the OS user id so one daemon serves all of that user's browsers.
func SocketPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("tempo-%d.sock", os.Getuid()))
}

// Hub accepts and multiplexes client connections. It implements the
// ledger's event sink, the schedule engine's observer, and the
// monitor's enforcer, translating each into broadcast wire messages.
type Hub struct {
	ledger     Ledger
	scorer     Scorer
	sched      Schedule
	sessions   *session.Manager
	suppressor Suppressor
	logger     Logger
	now        func() time.Time

	mu       sync.Mutex
	conns    map[string]*Conn
	settings *models.Settings
	listener net.Listener
}

// New creates a hub. suppressor and logger may be nil.
func New(led Ledger, sc Scorer, sched Schedule, sessions *session.Manager,
	suppressor Suppressor, logger Logger, settings *models.Settings, now func() time.Time) *Hub {

	if settings == nil {
		settings = models.DefaultSettings()
	}
	return &Hub{
		ledger:     led,
		scorer:     sc,
		sched:      sched,
		sessions:   sessions,
		suppressor: suppressor,
		logger:     logger,
		now:        now,
		conns:      map[string]*Conn{},
		settings:   settings,
	}
}

// Listen binds the unix socket, replacing any stale socket file.
func (h *Hub) Listen(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	// A previous daemon run may have left the socket file behind.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}

	h.mu.Lock()
	h.listener = listener
	h.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is done or the listener closes.
func (h *Hub) Serve(ctx context.Context) error {
	h.mu.Lock()
	listener := h.listener
	h.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("hub: Serve before Listen")
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go h.handle(ctx, raw)
	}
}

// Close shuts the listener and every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.listener != nil {
		h.listener.Close()
	}
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.raw.Close()
	}
}

// ConnCount returns the number of connected clients.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// SetSettings swaps the active settings and broadcasts the change.
func (h *Hub) SetSettings(settings *models.Settings) {
	h.mu.Lock()
	h.settings = settings
	h.mu.Unlock()
	h.Broadcast(SettingsChanged{Settings: *settings})
}

func (h *Hub) handle(ctx context.Context, raw net.Conn) {
	identity, err := peerIdentity(raw)
	if err != nil && h.logger != nil {
		h.logger.Log("peer identification failed: %v", err)
	}

	conn := &Conn{
		id:       uuid.New().String()[:8],
		identity: identity,
		raw:      raw,
	}

	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Log("client connected: %s (%s)", conn.id, identity)
	}

	// Reconnection resynchronizes by re-sending current state, never
	// by replaying missed deltas.
	if err := conn.send(h.stateReply()); err == nil {
		h.readLoop(ctx, conn)
	}

	h.mu.Lock()
	delete(h.conns, conn.id)
	h.mu.Unlock()
	raw.Close()

	if h.logger != nil {
		h.logger.Log("client disconnected: %s", conn.id)
	}
}

func (h *Hub) readLoop(ctx context.Context, conn *Conn) {
	for {
		payload, err := readFrame(conn.raw)
		if err != nil {
			if !errors.Is(err, io.EOF) && h.logger != nil {
				h.logger.Log("read from %s: %v", conn.id, err)
			}
			return
		}

		msg, err := decodeMessage(payload)
		if err != nil {
			if h.logger != nil {
				h.logger.Log("bad message from %s: %v", conn.id, err)
			}
			conn.send(ErrorReply{Message: err.Error()})
			continue
		}

		h.dispatch(ctx, conn, msg)
	}
}

// dispatch routes one inbound message. The switch is exhaustive over
// the inbound catalog; decodeMessage rejects anything else.
func (h *Hub) dispatch(ctx context.Context, conn *Conn, msg Message) {
	switch m := msg.(type) {
	case *Heartbeat:
		h.handleHeartbeat(conn, m)
	case *SessionStart:
		h.handleSessionStart(ctx, conn, m)
	case *SessionEnd:
		h.sessions.End(m.Platform)
		h.Broadcast(h.ledgerUpdate())
	case *ScoreRequest:
		h.handleScoreRequest(ctx, conn, m)
	case *StateQuery:
		conn.send(h.stateReply())
	case *SnoozeRequest:
		h.handleSnooze(conn, m)
	case *PartnerGrant:
		if err := h.ledger.ApplyPartnerGrant(); err != nil {
			conn.send(ErrorReply{Message: err.Error()})
			return
		}
		conn.send(h.ledgerUpdate())
	case *PushStart:
		if err := h.sched.PushBlockStart(m.BlockID, m.Minutes, h.now()); err != nil {
			conn.send(ErrorReply{Message: err.Error()})
			return
		}
		conn.send(h.stateReply())
	case *ApproveTarget:
		h.handleApprove(conn, m)
	}
}

func (h *Hub) handleSnooze(conn *Conn, m *SnoozeRequest) {
	if m.End {
		h.sched.Unsnooze()
		conn.send(h.stateReply())
		return
	}
	if m.DurationSeconds <= 0 {
		conn.send(ErrorReply{Message: "snooze needs a positive duration"})
		return
	}
	d := time.Duration(m.DurationSeconds) * time.Second
	if err := h.sched.Snooze(h.now(), d); err != nil {
		conn.send(ErrorReply{Message: err.Error()})
		return
	}
	conn.send(h.stateReply())
}

func (h *Hub) handleApprove(conn *Conn, m *ApproveTarget) {
	if m.Target == "" {
		conn.send(ErrorReply{Message: "approve-target needs a target"})
		return
	}
	h.scorer.Approve(m.Target)
	// The next poll scores the approved target relevant and clears any
	// standing overlay; no reply is needed.
}

func (h *Hub) handleHeartbeat(conn *Conn, m *Heartbeat) {
	conn.touch(h.now())
	if !m.Active || m.SecondsElapsed <= 0 {
		return
	}

	multiplier := h.sessions.Heartbeat(m.Platform, h.defaultMultiplier(m.Platform))
	if err := h.ledger.TickSpend(m.SecondsElapsed, multiplier); err != nil && h.logger != nil {
		h.logger.Log("spend tick failed: %v", err)
	}
	// The ledger's update event fans the new balance out to every
	// connection, including this one.
}

func (h *Hub) handleSessionStart(ctx context.Context, conn *Conn, m *SessionStart) {
	settings := h.currentSettings()
	base := h.defaultMultiplier(m.Platform)

	var categories []string
	filtered := false
	accepted := true
	reason := ""

	if m.Intent != "" {
		if h.suppressor != nil {
			h.suppressor.Suppress(true)
			defer h.suppressor.Suppress(false)
		}
		intention := ""
		if block := h.sched.CurrentBlock(h.now()); block != nil {
			intention = block.Intention()
		}
		verdict := h.scorer.Justify(ctx, m.Intent, intention)
		accepted = verdict.Accepted
		reason = verdict.Reason
		if verdict.Accepted {
			categories = verdict.Categories
			filtered = true
			if settings.JustificationMode && base > 1 {
				base = 1
			}
		}
	} else if settings.StrictFiltering {
		conn.send(SessionReply{Accepted: false, Reason: "an intent is required"})
		return
	}

	if !accepted {
		conn.send(SessionReply{Accepted: false, Reason: reason})
		return
	}

	h.sessions.Start(m.Platform, m.Intent, categories, filtered, base)
	conn.send(SessionReply{
		Accepted:       true,
		CostMultiplier: base,
		Categories:     categories,
	})
	h.Broadcast(h.ledgerUpdate())
}

func (h *Hub) handleScoreRequest(ctx context.Context, conn *Conn, m *ScoreRequest) {
	block := h.sched.CurrentBlock(h.now())
	if block == nil || !h.sched.State().Enforced() {
		conn.send(ScoreReply{Relevant: true, Confidence: 1, Reason: "no active work block"})
		return
	}

	target := m.Title
	if target == "" {
		target = m.URL
	}
	result := h.scorer.Score(ctx, target, block.Intention(), block.Description)
	conn.send(ScoreReply{
		Relevant:   result.Relevant,
		Confidence: result.Confidence,
		Reason:     result.Reason,
	})
}

// Broadcast sends a message to every connected client. Send failures
// drop only the failing connection.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.send(msg); err != nil {
			if h.logger != nil {
				h.logger.Log("broadcast to %s failed: %v", c.id, err)
			}
			c.raw.Close()
		}
	}
}

// LedgerUpdated implements the ledger's event sink.
func (h *Hub) LedgerUpdated(day models.LedgerDay) {
	h.Broadcast(LedgerUpdate{
		EarnedMinutes:  day.EarnedMinutes,
		UsedMinutes:    day.UsedMinutes,
		Available:      day.Available(),
		CostMultiplier: h.currentBlockMultiplier(),
	})
}

// PoolDepleted implements the ledger's event sink.
func (h *Hub) PoolDepleted(reason string) {
	h.Broadcast(PoolDepleted{Reason: reason})
}

// ScheduleChanged implements schedule.Observer. Registered last so the
// ledger and monitor have already observed the transition.
func (h *Hub) ScheduleChanged(ev schedule.ChangeEvent) {
	h.Broadcast(h.scheduleSync(ev.NewState, ev.Block, ev.At))
}

// ShowOverlay implements the monitor's enforcer.
func (h *Hub) ShowOverlay(kind models.EnforcementAction, duration time.Duration) {
	h.Broadcast(ShowOverlay{Kind: kind, DurationSeconds: int(duration.Seconds())})
}

// HideOverlay implements the monitor's enforcer.
func (h *Hub) HideOverlay() {
	h.Broadcast(HideOverlay{})
}

func (h *Hub) stateReply() StateReply {
	now := h.now()
	block := h.sched.CurrentBlock(now)
	return StateReply{
		Schedule: h.scheduleSync(h.sched.State(), block, now),
		Ledger:   h.ledgerUpdate(),
		Locked:   h.sched.Locked(),
		Sessions: h.sessions.Active(),
	}
}

func (h *Hub) scheduleSync(state models.TimeState, block *models.TimeBlock, now time.Time) ScheduleSync {
	sync := ScheduleSync{State: state}
	if block != nil {
		sync.BlockID = block.ID
		sync.BlockTitle = block.Title
		sync.BlockKind = block.Kind
		if remaining := block.End.Sub(now); remaining > 0 {
			sync.RemainingSeconds = int(remaining.Seconds())
		}
	}
	return sync
}

func (h *Hub) ledgerUpdate() LedgerUpdate {
	day := h.ledger.Snapshot()
	return LedgerUpdate{
		EarnedMinutes:  day.EarnedMinutes,
		UsedMinutes:    day.UsedMinutes,
		Available:      day.Available(),
		CostMultiplier: h.currentBlockMultiplier(),
	}
}

func (h *Hub) currentBlockMultiplier() float64 {
	block := h.sched.CurrentBlock(h.now())
	if block == nil {
		// Outside any block browsing is unplanned; spend at face value.
		return 1
	}
	return block.Kind.CostMultiplier()
}

func (h *Hub) defaultMultiplier(p models.Platform) float64 {
	settings := h.currentSettings()
	kind := models.KindLightFocus
	if block := h.sched.CurrentBlock(h.now()); block != nil {
		kind = block.Kind
	}
	return settings.MultiplierFor(p, kind)
}

func (h *Hub) currentSettings() *models.Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}
