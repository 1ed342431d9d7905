//go:build windows

package listener

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// namedPipeListener accepts connections on a Windows named pipe, using the
// same go-winio listener the teacher uses for its tunnel's Windows build
// (grounded on the library's ListenPipe wrapper around the Win32 named-pipe
// instance pool).
type namedPipeListener struct {
	Base
	cfg NamedPipeConfig
	ln  net.Listener
}

// NewNamedPipeListener returns a Listener bound to cfg.Path on first Run.
func NewNamedPipeListener(cfg NamedPipeConfig) Listener {
	return &namedPipeListener{Base: NewBase(), cfg: cfg}
}

func (l *namedPipeListener) Name() string { return l.cfg.ListenerName }

func (l *namedPipeListener) Run(ctx context.Context, delegate DelegateFunc) error {
	ln, err := winio.ListenPipe(l.cfg.Path, nil)
	if err != nil {
		return fmt.Errorf("listener %s: listen on %s: %w", l.Name(), l.cfg.Path, err)
	}
	l.ln = ln

	go func() {
		select {
		case <-ctx.Done():
			l.Cancel()
		case <-l.Done():
		}
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.Cancelled() {
				return nil
			}
			return fmt.Errorf("listener %s: accept: %w", l.Name(), err)
		}
		if err := delegate(conn, l, false); err != nil {
			conn.Close()
		}
	}
}
