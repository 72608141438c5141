// Package hub multiplexes browser-client connections over a per-user
// unix socket, translating ledger and schedule events into framed wire
// messages and broadcasting state changes to every connection.
package hub

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single message. A client sending more is
// malformed and gets disconnected.
const maxFrameSize = 1 << 20

// writeFrame writes one length-prefixed message: a 4-byte little-endian
// payload length followed by the payload bytes.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed message.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
