package hub

import (
	"encoding/json"
	"fmt"

	"tempo/pkg/models"
)

// Message is one wire message. The catalog is closed: decoding an
// unknown type is an error, and the dispatch switch in the hub covers
// every inbound kind.
type Message interface {
	// kind returns the wire type discriminator.
	kind() string
}

// Wire type discriminators.
const (
	// Hub → client.
	TypeScheduleSync    = "schedule-sync"
	TypeLedgerUpdate    = "ledger-update"
	TypePoolDepleted    = "pool-depleted"
	TypeShowOverlay     = "show-overlay"
	TypeHideOverlay     = "hide-overlay"
	TypeSettingsChanged = "settings-changed"
	TypeStateReply      = "state-reply"
	TypeSessionReply    = "session-reply"
	TypeScoreReply      = "score-reply"
	TypeError           = "error"

	// Client → hub.
	TypeHeartbeat     = "heartbeat"
	TypeSessionStart  = "session-start"
	TypeSessionEnd    = "session-end"
	TypeScoreRequest  = "score-request"
	TypeStateQuery    = "state-query"
	TypeSnooze        = "snooze"
	TypePartnerGrant  = "partner-grant"
	TypePushStart     = "push-start"
	TypeApproveTarget = "approve-target"
)

// ScheduleSync carries the current block and time-state to clients.
type ScheduleSync struct {
	BlockID          string           `json:"block_id,omitempty"`
	BlockTitle       string           `json:"block_title,omitempty"`
	BlockKind        models.BlockKind `json:"block_kind,omitempty"`
	State            models.TimeState `json:"state"`
	RemainingSeconds int              `json:"remaining_seconds"`
}

func (ScheduleSync) kind() string { return TypeScheduleSync }

// LedgerUpdate carries the day's balances to clients.
type LedgerUpdate struct {
	EarnedMinutes  float64 `json:"earned_minutes"`
	UsedMinutes    float64 `json:"used_minutes"`
	Available      float64 `json:"available"`
	CostMultiplier float64 `json:"cost_multiplier"`
}

func (LedgerUpdate) kind() string { return TypeLedgerUpdate }

// PoolDepleted announces that the spendable balance hit zero.
type PoolDepleted struct {
	Reason string `json:"reason"`
}

func (PoolDepleted) kind() string { return TypePoolDepleted }

// ShowOverlay instructs clients to render an enforcement overlay.
type ShowOverlay struct {
	Kind            models.EnforcementAction `json:"kind"`
	DurationSeconds int                      `json:"duration_seconds,omitempty"`
}

func (ShowOverlay) kind() string { return TypeShowOverlay }

// HideOverlay clears any enforcement overlay.
type HideOverlay struct{}

func (HideOverlay) kind() string { return TypeHideOverlay }

// SettingsChanged carries reloaded settings to clients.
type SettingsChanged struct {
	Settings models.Settings `json:"settings"`
}

func (SettingsChanged) kind() string { return TypeSettingsChanged }

// StateReply answers a state-query with the full current state.
type StateReply struct {
	Schedule ScheduleSync          `json:"schedule"`
	Ledger   LedgerUpdate          `json:"ledger"`
	Locked   bool                  `json:"locked"`
	Sessions []models.SessionState `json:"sessions,omitempty"`
}

func (StateReply) kind() string { return TypeStateReply }

// SessionReply answers a session-start.
type SessionReply struct {
	Accepted       bool     `json:"accepted"`
	CostMultiplier float64  `json:"cost_multiplier"`
	Categories     []string `json:"categories,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

func (SessionReply) kind() string { return TypeSessionReply }

// ScoreReply answers a score-request.
type ScoreReply struct {
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

func (ScoreReply) kind() string { return TypeScoreReply }

// ErrorReply reports a rejected request.
type ErrorReply struct {
	Message string `json:"message"`
}

func (ErrorReply) kind() string { return TypeError }

// Heartbeat reports elapsed browsing seconds on a platform.
type Heartbeat struct {
	Platform       models.Platform `json:"platform"`
	SecondsElapsed float64         `json:"seconds_elapsed"`
	Active         bool            `json:"active"`
}

func (Heartbeat) kind() string { return TypeHeartbeat }

// SessionStart asks to open a browsing session, optionally with a
// free-text justification.
type SessionStart struct {
	Platform models.Platform `json:"platform"`
	Intent   string          `json:"intent,omitempty"`
}

func (SessionStart) kind() string { return TypeSessionStart }

// SessionEnd closes a browsing session.
type SessionEnd struct {
	Platform models.Platform `json:"platform"`
}

func (SessionEnd) kind() string { return TypeSessionEnd }

// ScoreRequest asks for a relevance verdict on a tab.
type ScoreRequest struct {
	Platform models.Platform `json:"platform,omitempty"`
	Title    string          `json:"title"`
	URL      string          `json:"url,omitempty"`
}

func (ScoreRequest) kind() string { return TypeScoreRequest }

// StateQuery asks for a full state snapshot.
type StateQuery struct {
	Platform models.Platform `json:"platform,omitempty"`
}

func (StateQuery) kind() string { return TypeStateQuery }

// SnoozeRequest suspends enforcement for a duration, or ends an active
// snooze when End is set.
type SnoozeRequest struct {
	DurationSeconds int  `json:"duration_seconds,omitempty"`
	End             bool `json:"end,omitempty"`
}

func (SnoozeRequest) kind() string { return TypeSnooze }

// PartnerGrant credits one partner time grant to today's pool.
type PartnerGrant struct{}

func (PartnerGrant) kind() string { return TypePartnerGrant }

// PushStart delays an upcoming block's start, keeping its end fixed.
type PushStart struct {
	BlockID string `json:"block_id"`
	Minutes int    `json:"minutes"`
}

func (PushStart) kind() string { return TypePushStart }

// ApproveTarget adds a target to the active block's allow list,
// typically in answer to a nudge overlay.
type ApproveTarget struct {
	Target string `json:"target"`
}

func (ApproveTarget) kind() string { return TypeApproveTarget }

// envelope is the wire form: the payload object with an added type
// discriminator.
type envelope struct {
	Type string `json:"type"`
}

// encodeMessage serializes a message with its type discriminator.
func encodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.kind(), err)
	}
	// Splice the discriminator into the object.
	if string(payload) == "{}" {
		return []byte(fmt.Sprintf(`{"type":%q}`, msg.kind())), nil
	}
	out := append([]byte(fmt.Sprintf(`{"type":%q,`, msg.kind())), payload[1:]...)
	return out, nil
}

// decodeMessage parses one inbound wire message. Unknown types are an
// error; the inbound catalog is closed.
func decodeMessage(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	var msg Message
	switch env.Type {
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeSessionStart:
		msg = &SessionStart{}
	case TypeSessionEnd:
		msg = &SessionEnd{}
	case TypeScoreRequest:
		msg = &ScoreRequest{}
	case TypeStateQuery:
		msg = &StateQuery{}
	case TypeSnooze:
		msg = &SnoozeRequest{}
	case TypePartnerGrant:
		msg = &PartnerGrant{}
	case TypePushStart:
		msg = &PushStart{}
	case TypeApproveTarget:
		msg = &ApproveTarget{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", env.Type, err)
	}
	return msg, nil
}
