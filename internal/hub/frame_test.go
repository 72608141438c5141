package hub

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestFrameRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"small message", []byte(`{"type":"heartbeat"}`)},
		{"empty payload", []byte{}},
		{"binary-ish content", []byte{0, 1, 2, 255, 254}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeFrame(&buf, tt.payload); err != nil {
				t.Fatalf("writeFrame failed: %v", err)
			}

			got, err := readFrame(&buf)
			if err != nil {
				t.Fatalf("readFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("readFrame = %q, want %q", got, tt.payload)
			}
		})
	}
}

func TestFrame_LittleEndianPrefix(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	header := buf.Bytes()[:4]
	if got := binary.LittleEndian.Uint32(header); got != 5 {
		t.Errorf("length prefix = %d, want 5", got)
	}
	// Little-endian: the low byte comes first.
	if header[0] != 5 || header[3] != 0 {
		t.Errorf("header bytes = %v, want [5 0 0 0]", header)
	}
}

func TestReadFrame_RejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], maxFrameSize+1)
	buf.Write(header[:])

	if _, err := readFrame(&buf); err == nil {
		t.Error("readFrame should reject an oversize length prefix")
	}
}

func TestWriteFrame_RejectsOversize(t *testing.T) {
	if err := writeFrame(io.Discard, make([]byte, maxFrameSize+1)); err == nil {
		t.Error("writeFrame should reject an oversize payload")
	}
}

func TestReadFrame_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], 100)
	buf.Write(header[:])
	buf.WriteString("short")

	if _, err := readFrame(&buf); err == nil {
		t.Error("readFrame should fail on a truncated payload")
	}
}
