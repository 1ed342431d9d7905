//go:build !windows

package upstream

import (
	"context"

	"github.com/websoft9/agentbridge/internal/frame"
)

// namedPipeClient is a platform stub: Windows named pipes have no equivalent
// outside Windows (the raw byte-level details of each socket family are
// explicitly out of scope for the core, §1). Constructing one compiles and
// runs everywhere so the orchestrator and dispatcher can be exercised cross
// platform, but Exchange reports the transport as unavailable.
type namedPipeClient struct {
	cfg NamedPipeConfig
}

// NewNamedPipeClient returns a Client whose Exchange always fails on this platform.
func NewNamedPipeClient(cfg NamedPipeConfig) Client {
	return &namedPipeClient{cfg: cfg}
}

func (c *namedPipeClient) Name() string { return c.cfg.ClientName }

func (c *namedPipeClient) Exchange(_ context.Context, _ *frame.Message) error {
	return errUnsupported("named pipe")
}

func (c *namedPipeClient) Close() error { return nil }
