package frame

import (
	"encoding/binary"
	"fmt"
)

// FieldReader decodes the typed SSH agent fields (§4.1) from a payload slice.
// It never reallocates; it tracks a read cursor into the caller-owned buffer.
type FieldReader struct {
	buf []byte
	pos int
}

// NewFieldReader wraps payload for sequential typed reads.
func NewFieldReader(payload []byte) *FieldReader {
	return &FieldReader{buf: payload}
}

// Remaining reports how many unread bytes are left.
func (r *FieldReader) Remaining() int { return len(r.buf) - r.pos }

func (r *FieldReader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("frame: field read: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// Byte reads a single unsigned byte.
func (r *FieldReader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Bool reads a 1-byte boolean (any nonzero value is true).
func (r *FieldReader) Bool() (bool, error) {
	b, err := r.Byte()
	return b != 0, err
}

// Uint32 reads a big-endian u32.
func (r *FieldReader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a big-endian u64.
func (r *FieldReader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// String reads a u32-length-prefixed byte string.
func (r *FieldReader) String() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	s := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return s, nil
}

// FieldWriter appends the typed SSH agent fields to a growable envelope.
type FieldWriter struct {
	buf []byte
}

// NewFieldWriter returns a FieldWriter appending onto an empty envelope.
func NewFieldWriter() *FieldWriter {
	return &FieldWriter{}
}

// Bytes returns the accumulated envelope.
func (w *FieldWriter) Bytes() []byte { return w.buf }

// Byte appends a single unsigned byte.
func (w *FieldWriter) Byte(b byte) *FieldWriter {
	w.buf = append(w.buf, b)
	return w
}

// Bool appends a 1-byte boolean.
func (w *FieldWriter) Bool(v bool) *FieldWriter {
	if v {
		return w.Byte(1)
	}
	return w.Byte(0)
}

// Uint32 appends a big-endian u32.
func (w *FieldWriter) Uint32(v uint32) *FieldWriter {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Uint64 appends a big-endian u64.
func (w *FieldWriter) Uint64(v uint64) *FieldWriter {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// String appends a u32-length-prefixed byte string.
func (w *FieldWriter) String(s []byte) *FieldWriter {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}
