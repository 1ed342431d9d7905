package listener

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net"

	"github.com/websoft9/agentbridge/internal/rendezvous"
)

// AssuanConfig configures the libassuan/WSL TCP-loopback emulation listener
// (§6 "tcp-nonce" forward-socket kind). The listener binds an ephemeral TCP
// port on loopback and publishes it, together with a fresh nonce, in a
// rendezvous file at NoncePath. A connecting client must send the nonce
// back as the first 16 bytes of the stream before any framed traffic.
type AssuanConfig struct {
	// ListenerName identifies the listener for logging.
	ListenerName string
	// NoncePath is where the rendezvous file is written.
	NoncePath string
}

// assuanListener implements the libassuan-style nonce handshake over TCP
// loopback, as used by gpg-agent/ssh-agent emulation under WSL.
type assuanListener struct {
	Base
	cfg   AssuanConfig
	ln    net.Listener
	nonce [rendezvous.NonceSize]byte
}

// NewAssuanListener returns a Listener that also implements Handshaker.
func NewAssuanListener(cfg AssuanConfig) Listener {
	return &assuanListener{Base: NewBase(), cfg: cfg}
}

func (l *assuanListener) Name() string { return l.cfg.ListenerName }

func (l *assuanListener) Run(ctx context.Context, delegate DelegateFunc) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listener %s: listen: %w", l.Name(), err)
	}
	l.ln = ln

	nonce, err := rendezvous.NewNonce()
	if err != nil {
		ln.Close()
		return fmt.Errorf("listener %s: %w", l.Name(), err)
	}
	l.nonce = nonce

	port := ln.Addr().(*net.TCPAddr).Port
	if err := rendezvous.WritePlain(l.cfg.NoncePath, port, nonce); err != nil {
		ln.Close()
		return fmt.Errorf("listener %s: write rendezvous file %s: %w", l.Name(), l.cfg.NoncePath, err)
	}

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

// Handshake reads 16 bytes from conn and compares them to the nonce
// published in the rendezvous file (§6, §7 error kind Handshake).
func (l *assuanListener) Handshake(_ context.Context, conn net.Conn) error {
	var got [rendezvous.NonceSize]byte
	if _, err := io.ReadFull(conn, got[:]); err != nil {
		return fmt.Errorf("listener %s: read nonce: %w", l.Name(), err)
	}
	if subtle.ConstantTimeCompare(got[:], l.nonce[:]) != 1 {
		return fmt.Errorf("listener %s: nonce mismatch", l.Name())
	}
	return nil
}
