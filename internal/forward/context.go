// Package forward implements the forward connection manager (§4.5): a
// bidirectional byte pump between an accepted connection and an upstream
// peer, with strict half-close ordering preserved across both socket and
// stream-file handles.
package forward

import "net"

// SlotState is the per-peer-slot state of a Context (§4.5).
type SlotState int

const (
	SlotInitialized SlotState = iota
	SlotReady
	SlotRead
	SlotWrite
	SlotShutdown
)

// slot is one half of a Context: a connection and its current phase.
type slot struct {
	conn  net.Conn
	state SlotState
	buf   []byte
}

// Context is the state for one forwarded connection pair: the accepted
// connection (slot 0) and the dialed peer (slot 1).
type Context struct {
	ID    string
	slots [2]*slot
}

func newContext(id string, local, peer net.Conn, bufSize int) *Context {
	return &Context{
		ID: id,
		slots: [2]*slot{
			{conn: local, buf: make([]byte, bufSize)},
			{conn: peer, buf: make([]byte, bufSize)},
		},
	}
}

func (c *Context) other(i int) int { return 1 - i }
