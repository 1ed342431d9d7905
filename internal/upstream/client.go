// Package upstream implements the single-operation upstream client contract
// (§4.2): deliver a framed request, receive exactly one framed reply, and
// overwrite the message in place. Known implementations are a Windows named
// pipe client and a Pageant WM_COPYDATA client; both are safe to call
// concurrently with other clients, but the dispatcher never issues two
// parallel calls to the same client (§4.2).
package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/websoft9/agentbridge/internal/frame"
)

// defaultExchangeTimeout bounds a single round trip to a local IPC upstream.
// §5: "a few seconds for a local IPC"; the named-pipe client applies it, and
// on timeout its Exchange returns an error that the dispatcher treats as a
// failed attempt (§4.6, §7 UpstreamFailed).
const defaultExchangeTimeout = 5 * time.Second

// Client performs a synchronous framed request/reply exchange against one
// upstream agent endpoint.
type Client interface {
	// Name identifies the client for logging and configuration ordering.
	Name() string
	// Exchange delivers msg to the upstream and overwrites msg.Data with the
	// reply. ctx governs cancellation; the named-pipe client additionally
	// bounds the round trip by defaultExchangeTimeout, while the Pageant
	// client's window-message send is not bounded.
	Exchange(ctx context.Context, msg *frame.Message) error
	// Close releases any resources held by the client (idle pipe handles,
	// windows). The orchestrator does not call it at shutdown.
	Close() error
}

// withTimeout derives a context bounded by defaultExchangeTimeout unless the
// caller's context already carries a tighter deadline.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultExchangeTimeout)
}

// errUnsupported is returned by a platform stub when built on a platform
// that does not implement the given transport.
func errUnsupported(kind string) error {
	return fmt.Errorf("upstream: %s client: not supported on this platform", kind)
}
