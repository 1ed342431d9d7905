// Package frame implements the length-prefixed SSH agent wire format: a
// 4-byte big-endian length followed by exactly that many bytes of opaque
// payload (payload[0] is the opcode). It also provides the typed field
// readers/writers and identity encoding used by the dispatcher.
package frame

import (
	"errors"
	"fmt"
)

// MaxMessage is the largest payload the codec will accept, per the wire
// contract in §6: length <= 262144.
const MaxMessage = 256 * 1024

// ErrTooLarge is returned when a declared or actual payload length exceeds
// MaxMessage.
var ErrTooLarge = errors.New("frame: message exceeds maximum length")

// Message is one framed SSH agent request or reply. The proxy manager
// allocates a fresh Message for every frame it reads.
type Message struct {
	// Data is the opaque payload; Data[0] is the opcode once populated.
	Data []byte
}

// Length reports the current payload length.
func (m *Message) Length() int { return len(m.Data) }

// Opcode returns the first payload byte, or 0 if the message is empty.
func (m *Message) Opcode() byte {
	if len(m.Data) == 0 {
		return 0
	}
	return m.Data[0]
}

// Reset clears the message payload for reuse on the next frame, keeping the
// underlying array when it is large enough to avoid a reallocation.
func (m *Message) Reset() {
	m.Data = m.Data[:0]
}

// SetPayload replaces the message payload, validating it against MaxMessage.
func (m *Message) SetPayload(p []byte) error {
	if len(p) > MaxMessage {
		return fmt.Errorf("frame: set payload: %w (%d > %d)", ErrTooLarge, len(p), MaxMessage)
	}
	m.Data = append(m.Data[:0], p...)
	return nil
}

// Clone returns a Message carrying an independent copy of Data, for policies
// (§4.6) that hand the same logical request to several upstreams in turn.
func (m *Message) Clone() *Message {
	cp := make([]byte, len(m.Data))
	copy(cp, m.Data)
	return &Message{Data: cp}
}
