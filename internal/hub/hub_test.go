package hub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tempo/internal/scorer"
	"tempo/internal/session"
	"tempo/pkg/models"
)

// fakeLedger implements the hub's ledger slice.
type fakeLedger struct {
	day      models.LedgerDay
	spends   []float64
	grants   int
	grantErr error
}

func (f *fakeLedger) Snapshot() models.LedgerDay { return f.day }

func (f *fakeLedger) TickSpend(seconds float64, costMultiplier float64) error {
	f.spends = append(f.spends, seconds*costMultiplier)
	return nil
}

func (f *fakeLedger) ApplyPartnerGrant() error {
	if f.grantErr != nil {
		return f.grantErr
	}
	f.grants++
	f.day.EarnedMinutes += 15
	return nil
}

// fakeScorer returns canned verdicts.
type fakeScorer struct {
	scoreResult scorer.Result
	justify     scorer.JustificationResult
	approved    []string
}

func (f *fakeScorer) Score(ctx context.Context, target, intention, description string) scorer.Result {
	return f.scoreResult
}

func (f *fakeScorer) Justify(ctx context.Context, justification, intention string) scorer.JustificationResult {
	return f.justify
}

func (f *fakeScorer) Approve(target string) {
	f.approved = append(f.approved, target)
}

// fakeSchedule is a static schedule view.
type fakeSchedule struct {
	state        models.TimeState
	block        *models.TimeBlock
	locked       bool
	snoozedUntil time.Time
	pushed       []string
	pushErr      error
}

func (f *fakeSchedule) State() models.TimeState { return f.state }

func (f *fakeSchedule) CurrentBlock(now time.Time) *models.TimeBlock { return f.block }

func (f *fakeSchedule) Locked() bool { return f.locked }

func (f *fakeSchedule) Snooze(now time.Time, d time.Duration) error {
	if now.Before(f.snoozedUntil) {
		return errors.New("a snooze is already active")
	}
	f.snoozedUntil = now.Add(d)
	return nil
}

func (f *fakeSchedule) Unsnooze() { f.snoozedUntil = time.Time{} }

func (f *fakeSchedule) PushBlockStart(id string, minutes int, now time.Time) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, fmt.Sprintf("%s+%d", id, minutes))
	return nil
}

// sessionStore is an in-memory session.Store.
type sessionStore struct {
	sessions map[models.Platform]*models.SessionState
}

func (s *sessionStore) SaveSessions(sessions map[models.Platform]*models.SessionState) error {
	s.sessions = sessions
	return nil
}

func (s *sessionStore) LoadSessions() (map[models.Platform]*models.SessionState, error) {
	if s.sessions == nil {
		return map[models.Platform]*models.SessionState{}, nil
	}
	return s.sessions, nil
}

type hubFixture struct {
	hub      *Hub
	ledger   *fakeLedger
	scorer   *fakeScorer
	schedule *fakeSchedule
	path     string
	cancel   context.CancelFunc
}

func startHub(t *testing.T) *hubFixture {
	t.Helper()

	led := &fakeLedger{day: models.LedgerDay{EarnedMinutes: 10, UsedMinutes: 2}}
	sc := &fakeScorer{
		scoreResult: scorer.Result{Relevant: true, Confidence: 0.9, Source: "model"},
		justify:     scorer.JustificationResult{Accepted: true, Categories: []string{"tutorials"}},
	}
	sched := &fakeSchedule{state: models.StateUnplanned}

	sessions, err := session.New(&sessionStore{}, time.Now)
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.Local)
	h := New(led, sc, sched, sessions, nil, nil, nil, func() time.Time { return now })

	path := filepath.Join(t.TempDir(), "tempo-test.sock")
	if err := h.Listen(path); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go h.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		h.Close()
	})

	return &hubFixture{hub: h, ledger: led, scorer: sc, schedule: sched, path: path, cancel: cancel}
}

func dialHub(t *testing.T, f *hubFixture) *Client {
	t.Helper()
	client, err := Dial(f.path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	// Every connection gets an initial state snapshot.
	msg, err := client.Recv()
	if err != nil {
		t.Fatalf("initial recv failed: %v", err)
	}
	if _, ok := msg.(*StateReply); !ok {
		t.Fatalf("initial message = %T, want *StateReply", msg)
	}
	return client
}

func TestHub_InitialStateOnConnect(t *testing.T) {
	f := startHub(t)
	client, err := Dial(f.path)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	msg, err := client.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	reply, ok := msg.(*StateReply)
	if !ok {
		t.Fatalf("first message = %T, want *StateReply", msg)
	}
	if reply.Ledger.Available != 8 {
		t.Errorf("initial Available = %v, want 8", reply.Ledger.Available)
	}
	if reply.Schedule.State != models.StateUnplanned {
		t.Errorf("initial state = %v, want unplanned", reply.Schedule.State)
	}
}

func TestHub_StateQuery(t *testing.T) {
	f := startHub(t)
	f.schedule.state = models.StateWorkBlock
	f.schedule.block = &models.TimeBlock{
		ID: "b1", Title: "Deep work", Kind: models.KindDeepFocus,
		Start: time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local),
		End:   time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local),
	}

	client := dialHub(t, f)
	reply, err := client.QueryState()
	if err != nil {
		t.Fatalf("QueryState failed: %v", err)
	}
	if reply.Schedule.BlockID != "b1" {
		t.Errorf("BlockID = %q, want b1", reply.Schedule.BlockID)
	}
	if reply.Schedule.RemainingSeconds != 90*60 {
		t.Errorf("RemainingSeconds = %d, want %d", reply.Schedule.RemainingSeconds, 90*60)
	}
	if reply.Ledger.CostMultiplier != 2 {
		t.Errorf("CostMultiplier = %v, want deep-focus 2", reply.Ledger.CostMultiplier)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	f := startHub(t)
	first := dialHub(t, f)
	second := dialHub(t, f)

	f.hub.PoolDepleted("balance-exhausted")

	for i, client := range []*Client{first, second} {
		msg, err := client.Recv()
		if err != nil {
			t.Fatalf("client %d recv failed: %v", i, err)
		}
		depleted, ok := msg.(*PoolDepleted)
		if !ok {
			t.Fatalf("client %d message = %T, want *PoolDepleted", i, msg)
		}
		if depleted.Reason != "balance-exhausted" {
			t.Errorf("client %d reason = %q", i, depleted.Reason)
		}
	}
}

func TestHub_DisconnectIsIsolated(t *testing.T) {
	f := startHub(t)
	first := dialHub(t, f)
	second := dialHub(t, f)

	first.Close()
	// Give the hub a moment to reap the dead connection.
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ConnCount() > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	f.hub.Broadcast(HideOverlay{})
	msg, err := second.Recv()
	if err != nil {
		t.Fatalf("surviving client recv failed: %v", err)
	}
	if _, ok := msg.(*HideOverlay); !ok {
		t.Errorf("surviving client message = %T, want *HideOverlay", msg)
	}
}

func TestHub_HeartbeatSpends(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	if err := client.Send(Heartbeat{Platform: models.PlatformYouTube, SecondsElapsed: 30, Active: true}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.ledger.spends) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(f.ledger.spends) != 1 {
		t.Fatalf("spends = %v, want one", f.ledger.spends)
	}
}

func TestHub_SessionStartWithIntent(t *testing.T) {
	f := startHub(t)
	f.schedule.state = models.StateWorkBlock
	f.schedule.block = &models.TimeBlock{
		ID: "b1", Title: "Build the bookshelf", Kind: models.KindDeepFocus,
		Start: time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local),
		End:   time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local),
	}
	client := dialHub(t, f)

	if err := client.Send(SessionStart{Platform: models.PlatformYouTube, Intent: "dovetail joint tutorial"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for {
		msg, err := client.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		reply, ok := msg.(*SessionReply)
		if !ok {
			continue // skip interleaved broadcasts
		}
		if !reply.Accepted {
			t.Errorf("reply = %+v, want accepted", reply)
		}
		if len(reply.Categories) == 0 {
			t.Error("accepted filtered session should carry categories")
		}
		break
	}
}

func TestHub_SessionStartRejected(t *testing.T) {
	f := startHub(t)
	f.scorer.justify = scorer.JustificationResult{Accepted: false, Reason: "unrelated"}
	client := dialHub(t, f)

	if err := client.Send(SessionStart{Platform: models.PlatformYouTube, Intent: "just browsing"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for {
		msg, err := client.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		reply, ok := msg.(*SessionReply)
		if !ok {
			continue
		}
		if reply.Accepted {
			t.Errorf("reply = %+v, want rejected", reply)
		}
		break
	}
}

func TestHub_ScoreRequestOutsideWorkBlock(t *testing.T) {
	f := startHub(t)
	f.scorer.scoreResult = scorer.Result{Relevant: false, Confidence: 0.9, Source: "model"}
	client := dialHub(t, f)

	if err := client.Send(ScoreRequest{Title: "Anything at all"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for {
		msg, err := client.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		reply, ok := msg.(*ScoreReply)
		if !ok {
			continue
		}
		// No work block is active: everything is trivially relevant.
		if !reply.Relevant {
			t.Errorf("reply = %+v, want trivially relevant outside work blocks", reply)
		}
		break
	}
}

func TestHub_Snooze(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	if _, err := client.Snooze(10*time.Minute, false); err != nil {
		t.Fatalf("Snooze failed: %v", err)
	}
	if f.schedule.snoozedUntil.IsZero() {
		t.Error("snooze did not reach the schedule engine")
	}

	// A second snooze while one is active is rejected.
	if _, err := client.Snooze(10*time.Minute, false); err == nil {
		t.Error("second snooze should be rejected")
	}

	if _, err := client.Snooze(0, true); err != nil {
		t.Fatalf("end snooze failed: %v", err)
	}
	if !f.schedule.snoozedUntil.IsZero() {
		t.Error("--end did not clear the snooze")
	}
}

func TestHub_SnoozeRejectsZeroDuration(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	if _, err := client.Snooze(0, false); err == nil {
		t.Error("zero-duration snooze should be rejected")
	}
}

func TestHub_PartnerGrant(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	ledger, err := client.Grant()
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if f.ledger.grants != 1 {
		t.Errorf("grants = %d, want 1", f.ledger.grants)
	}
	if ledger.EarnedMinutes != 25 {
		t.Errorf("EarnedMinutes = %v, want 25 after the grant", ledger.EarnedMinutes)
	}

	f.ledger.grantErr = errors.New("daily grant cap reached")
	if _, err := client.Grant(); err == nil {
		t.Error("a capped grant should surface the ledger's error")
	}
}

func TestHub_PushStart(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	if _, err := client.PushStart("b1", 30); err != nil {
		t.Fatalf("PushStart failed: %v", err)
	}
	if len(f.schedule.pushed) != 1 || f.schedule.pushed[0] != "b1+30" {
		t.Errorf("pushed = %v, want [b1+30]", f.schedule.pushed)
	}

	f.schedule.pushErr = errors.New("block has already started")
	if _, err := client.PushStart("b1", 30); err == nil {
		t.Error("a rejected push should surface the engine's error")
	}
}

func TestHub_ApproveTarget(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	if err := client.Approve("pkg.go.dev"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.scorer.approved) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(f.scorer.approved) != 1 || f.scorer.approved[0] != "pkg.go.dev" {
		t.Errorf("approved = %v, want [pkg.go.dev]", f.scorer.approved)
	}
}

func TestHub_StalledClientDoesNotBlockBroadcast(t *testing.T) {
	old := sendTimeout
	sendTimeout = 200 * time.Millisecond
	defer func() { sendTimeout = old }()

	f := startHub(t)
	dialHub(t, f) // reads the greeting, then never reads again

	// Flood until the stalled client's socket buffer fills. Every send
	// must return, dropping the stalled connection instead of hanging.
	big := ErrorReply{Message: strings.Repeat("x", 1<<16)}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			f.hub.Broadcast(big)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Broadcast blocked on a client that stopped reading")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ConnCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.hub.ConnCount(); got != 0 {
		t.Errorf("ConnCount = %d, want the stalled client dropped", got)
	}
}

func TestHub_MalformedMessageGetsErrorReply(t *testing.T) {
	f := startHub(t)
	client := dialHub(t, f)

	if err := writeFrame(client.conn, []byte(`{"type":"firmware-update"}`)); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	for {
		msg, err := client.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if _, ok := msg.(*ErrorReply); ok {
			return
		}
	}
}
