//go:build !windows

package upstream

import (
	"context"

	"github.com/websoft9/agentbridge/internal/frame"
)

// pageantClient is a platform stub outside Windows: Pageant's WM_COPYDATA
// IPC has no equivalent on other platforms.
type pageantClient struct {
	cfg PageantConfig
}

// NewPageantClient returns a Client whose Exchange always fails on this platform.
func NewPageantClient(cfg PageantConfig) Client {
	return &pageantClient{cfg: cfg}
}

func (c *pageantClient) Name() string { return c.cfg.ClientName }

func (c *pageantClient) Exchange(_ context.Context, _ *frame.Message) error {
	return errUnsupported("pageant")
}

func (c *pageantClient) Close() error { return nil }
