package hub

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a minimal protocol client, used by the CLI and by tests.
// Browser extensions speak the same wire format natively.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon's socket.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes one message.
func (c *Client) Send(msg Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return writeFrame(c.conn, payload)
}

// Recv reads and decodes one server message.
func (c *Client) Recv() (Message, error) {
	payload, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	return decodeServerMessage(payload)
}

// QueryState requests a full state snapshot, skipping any broadcasts
// interleaved before the reply.
func (c *Client) QueryState() (*StateReply, error) {
	return c.stateRoundTrip(StateQuery{})
}

// Hello consumes the initial state snapshot the hub sends on connect.
func (c *Client) Hello() (*StateReply, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	msg, err := c.Recv()
	if err != nil {
		return nil, err
	}
	reply, ok := msg.(*StateReply)
	if !ok {
		return nil, fmt.Errorf("unexpected greeting %T", msg)
	}
	return reply, nil
}

// Snooze suspends enforcement for d, or ends the active snooze when
// end is set.
func (c *Client) Snooze(d time.Duration, end bool) (*StateReply, error) {
	req := SnoozeRequest{End: end}
	if !end {
		req.DurationSeconds = int(d.Seconds())
	}
	return c.stateRoundTrip(req)
}

// PushStart delays an upcoming block's start by the given minutes.
func (c *Client) PushStart(blockID string, minutes int) (*StateReply, error) {
	return c.stateRoundTrip(PushStart{BlockID: blockID, Minutes: minutes})
}

// Grant applies one partner time grant and returns the new balances.
func (c *Client) Grant() (*LedgerUpdate, error) {
	if err := c.Send(PartnerGrant{}); err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		msg, err := c.Recv()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *LedgerUpdate:
			return m, nil
		case *ErrorReply:
			return nil, fmt.Errorf("daemon: %s", m.Message)
		}
	}
}

// Approve adds a target to the active block's allow list.
func (c *Client) Approve(target string) error {
	return c.Send(ApproveTarget{Target: target})
}

func (c *Client) stateRoundTrip(msg Message) (*StateReply, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		reply, err := c.Recv()
		if err != nil {
			return nil, err
		}
		switch m := reply.(type) {
		case *StateReply:
			return m, nil
		case *ErrorReply:
			return nil, fmt.Errorf("daemon: %s", m.Message)
		}
	}
}

// decodeServerMessage parses one server-to-client wire message.
func decodeServerMessage(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	var msg Message
	switch env.Type {
	case TypeScheduleSync:
		msg = &ScheduleSync{}
	case TypeLedgerUpdate:
		msg = &LedgerUpdate{}
	case TypePoolDepleted:
		msg = &PoolDepleted{}
	case TypeShowOverlay:
		msg = &ShowOverlay{}
	case TypeHideOverlay:
		msg = &HideOverlay{}
	case TypeSettingsChanged:
		msg = &SettingsChanged{}
	case TypeStateReply:
		msg = &StateReply{}
	case TypeSessionReply:
		msg = &SessionReply{}
	case TypeScoreReply:
		msg = &ScoreReply{}
	case TypeError:
		msg = &ErrorReply{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", env.Type, err)
	}
	return msg, nil
}
