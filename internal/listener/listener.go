// Package listener implements the listener contract (§4.3): each listener
// exposes Run/Cancel/Cancelled, accepts connections on its transport, and
// hands each one to a connection manager via DelegateFunc. Listeners that
// require a pre-framing handshake additionally implement Handshaker.
package listener

import (
	"context"
	"net"
)

// Listener is a transport endpoint that accepts connections and delegates
// each one to a connection manager. Run blocks until the listener's own
// accept loop exits (on Cancel or an unrecoverable transport error).
type Listener interface {
	// Name identifies the listener for logging.
	Name() string
	// Run sets up the endpoint and loops accepting connections, delegating
	// each to delegate. It returns when ctx is cancelled or Cancel is called.
	Run(ctx context.Context, delegate DelegateFunc) error
	// Cancel requests the accept loop to stop.
	Cancel()
	// Cancelled reports whether Cancel has been called.
	Cancelled() bool
}

// DelegateFunc hands one accepted connection to a connection manager
// (§6 "Listener hand-off"). isSocket distinguishes a socket handle from a
// stream-file handle (a named pipe); the proxy manager records it on the
// connection's Context, and neither manager behaves differently on it. On
// error the listener
// must close conn itself — the manager never took ownership.
type DelegateFunc func(conn net.Conn, lis Listener, isSocket bool) error

// Handshaker is implemented by listeners whose transport requires
// authentication before framed traffic begins (§4.3): TCP-nonce emulation
// and Cygwin emulation. The manager calls Handshake once, synchronously,
// immediately after delegation and before entering ReadHeader.
type Handshaker interface {
	// Handshake performs the listener's pre-framing exchange on conn. A
	// non-nil error means the connection must be disposed without ever
	// reaching ReadHeader (§7 error kind Handshake).
	Handshake(ctx context.Context, conn net.Conn) error
}

// Base provides the Cancel/Cancelled bookkeeping shared by every listener
// implementation, mirroring the cancel-channel idiom the teacher uses in
// tunnel.Server.ListenAndServe (context-driven listener close).
type Base struct {
	cancel chan struct{}
}

// NewBase returns an initialised Base.
func NewBase() Base {
	return Base{cancel: make(chan struct{})}
}

// Cancel closes the cancel channel exactly once; it is safe to call more than once.
func (b *Base) Cancel() {
	select {
	case <-b.cancel:
	default:
		close(b.cancel)
	}
}

// Cancelled reports whether Cancel has fired.
func (b *Base) Cancelled() bool {
	select {
	case <-b.cancel:
		return true
	default:
		return false
	}
}

// Done returns the channel closed by Cancel, for select-based accept loops.
func (b *Base) Done() <-chan struct{} { return b.cancel }
