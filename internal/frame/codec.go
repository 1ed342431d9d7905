package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// headerLen is the size of the big-endian length prefix.
const headerLen = 4

// ReadMessage reads one framed message from r: a 4-byte big-endian length
// followed by exactly that many bytes. It rejects any declared length
// greater than MaxMessage before reading a single body byte (testable
// property 2), and treats a short read on either the header or the body as
// a framing error rather than returning a partial message.
func ReadMessage(r io.Reader, msg *Message) error {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("frame: read header: %w", err)
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length > MaxMessage {
		return fmt.Errorf("frame: read header: declared length %d: %w", length, ErrTooLarge)
	}

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return fmt.Errorf("frame: read body: %w", err)
		}
	}
	msg.Data = body
	return nil
}

// WriteMessage writes msg as one framed message: a 4-byte big-endian length
// prefix equal to len(msg.Data), followed by the payload.
func WriteMessage(w io.Writer, msg *Message) error {
	if len(msg.Data) > MaxMessage {
		return fmt.Errorf("frame: write: %w", ErrTooLarge)
	}

	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(msg.Data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if len(msg.Data) > 0 {
		if _, err := w.Write(msg.Data); err != nil {
			return fmt.Errorf("frame: write body: %w", err)
		}
	}
	return nil
}

// EncodeHeader renders length as the 4-byte big-endian prefix used on the wire.
func EncodeHeader(length uint32) [headerLen]byte {
	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[:], length)
	return hdr
}

// DecodeHeader parses a 4-byte big-endian length prefix. It panics if b is
// shorter than 4 bytes — callers (the Pageant listener and client) pass the
// first 4 bytes of the shared-memory mapping.
func DecodeHeader(b []byte) uint32 {
	return binary.BigEndian.Uint32(b[:headerLen])
}
