package proxy

import (
	"net"

	"github.com/websoft9/agentbridge/internal/listener"
)

// State is a step in the proxy connection state machine (§4.4). The Go
// implementation runs each Context on its own goroutine doing sequential
// blocking I/O, so these states describe program-counter position rather
// than interleaved completions — the same "one outstanding op per context"
// invariant the completion-port design relies on holds trivially here.
type State int

const (
	Initialized State = iota
	Handshake
	Ready
	ReadHeader
	ReadBody
	WaitReply
	WriteReply
	Destroyed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "Initialized"
	case Handshake:
		return "Handshake"
	case Ready:
		return "Ready"
	case ReadHeader:
		return "ReadHeader"
	case ReadBody:
		return "ReadBody"
	case WaitReply:
		return "WaitReply"
	case WriteReply:
		return "WriteReply"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// Context is the per-connection state for one proxied connection (§4.4
// "ProxyContext"). reply carries the dispatcher's outcome back to the
// connection's goroutine, playing the role the spec's reply callback plays
// for a completion-port implementation.
type Context struct {
	ID       string
	Conn     net.Conn
	Listener listener.Listener
	IsSocket bool
	State    State

	reply chan replyOutcome
}

type replyOutcome struct {
	ok bool
}

// newContext constructs a Context in the Initialized state.
func newContext(id string, conn net.Conn, lis listener.Listener, isSocket bool) *Context {
	return &Context{
		ID:       id,
		Conn:     conn,
		Listener: lis,
		IsSocket: isSocket,
		State:    Initialized,
		reply:    make(chan replyOutcome, 1),
	}
}
