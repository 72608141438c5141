package hub

import (
	"net"
	"sync"
	"time"
)

// sendTimeout bounds one frame write. A client that stops draining its
// socket hits it and gets dropped rather than stalling the hub.
var sendTimeout = 5 * time.Second

// Conn is one connected browser client. The daemon's state is never
// owned by a connection; dropping one leaves the ledger, schedule, and
// the other connections untouched.
type Conn struct {
	id       string
	identity string
	raw      net.Conn

	writeMu sync.Mutex

	mu            sync.Mutex
	lastHeartbeat time.Time
}

// ID returns the connection's identifier.
func (c *Conn) ID() string { return c.id }

// Identity returns the browser identity resolved from the OS process
// tree at accept time.
func (c *Conn) Identity() string { return c.identity }

// send encodes and writes one message. Writes are serialized per
// connection so broadcasts and replies never interleave mid-frame.
func (c *Conn) send(msg Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.raw.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return err
	}
	defer c.raw.SetWriteDeadline(time.Time{})
	return writeFrame(c.raw, payload)
}

func (c *Conn) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = now
}

// LastHeartbeat returns the time of the most recent heartbeat.
func (c *Conn) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}
