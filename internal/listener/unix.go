package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// UnixConfig configures a Unix-domain socket listener (§6 "socket"
// forward-socket kind). No handshake is required: the filesystem permission
// bits on Path are the authorization boundary.
type UnixConfig struct {
	// ListenerName identifies the listener for logging.
	ListenerName string
	// Path is the socket path. Any stale socket file at Path is removed
	// before binding, mirroring ssh-agent's own behaviour.
	Path string
}

// unixListener accepts connections on a Unix-domain socket.
type unixListener struct {
	Base
	cfg UnixConfig
	ln  net.Listener
}

// NewUnixListener returns a Listener bound to cfg.Path on first Run.
func NewUnixListener(cfg UnixConfig) Listener {
	return &unixListener{Base: NewBase(), cfg: cfg}
}

func (l *unixListener) Name() string { return l.cfg.ListenerName }

func (l *unixListener) Run(ctx context.Context, delegate DelegateFunc) error {
	if err := os.RemoveAll(l.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("listener %s: remove stale socket %s: %w", l.Name(), l.cfg.Path, err)
	}

	ln, err := net.Listen("unix", l.cfg.Path)
	if err != nil {
		return fmt.Errorf("listener %s: listen on %s: %w", l.Name(), l.cfg.Path, err)
	}
	if err := os.Chmod(l.cfg.Path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("listener %s: chmod %s: %w", l.Name(), l.cfg.Path, err)
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
		if err := delegate(conn, l, true); err != nil {
			conn.Close()
		}
	}
}
