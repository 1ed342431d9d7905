//go:build windows

package upstream

import (
	"context"
	"fmt"

	"github.com/Microsoft/go-winio"
	"github.com/websoft9/agentbridge/internal/frame"
)

// namedPipeClient opens a fresh pipe connection for every Exchange call,
// exactly as spec.md §4.2 describes the known implementation: open, write
// request, read reply, close. Go's net.Conn-shaped pipe handle from go-winio
// lets this reuse the same framed read/write helpers as the listener side.
type namedPipeClient struct {
	cfg NamedPipeConfig
}

// NewNamedPipeClient returns a Client that dials cfg.Path on every Exchange.
func NewNamedPipeClient(cfg NamedPipeConfig) Client {
	return &namedPipeClient{cfg: cfg}
}

func (c *namedPipeClient) Name() string { return c.cfg.ClientName }

func (c *namedPipeClient) Exchange(ctx context.Context, msg *frame.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	conn, err := winio.DialPipeContext(ctx, c.cfg.Path)
	if err != nil {
		return fmt.Errorf("upstream: namedpipe %s: dial %s: %w", c.cfg.ClientName, c.cfg.Path, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := frame.WriteMessage(conn, msg); err != nil {
		return fmt.Errorf("upstream: namedpipe %s: write request: %w", c.cfg.ClientName, err)
	}
	if err := frame.ReadMessage(conn, msg); err != nil {
		return fmt.Errorf("upstream: namedpipe %s: read reply: %w", c.cfg.ClientName, err)
	}
	return nil
}

func (c *namedPipeClient) Close() error { return nil }
