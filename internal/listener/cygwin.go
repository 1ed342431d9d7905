package listener

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/websoft9/agentbridge/internal/rendezvous"
)

// CygwinConfig configures the Cygwin AF_UNIX-over-TCP emulation listener
// (§6 "tcp-nonce" forward-socket kind, Cygwin variant). Cygwin's emulation
// adds a second leg to the plain nonce handshake: after the nonce, peers
// exchange a 12-byte identity record (pid, uid, gid) so each side can log
// who it is talking to.
type CygwinConfig struct {
	// ListenerName identifies the listener for logging.
	ListenerName string
	// NoncePath is where the Cygwin-format rendezvous file is written.
	NoncePath string
}

type cygwinListener struct {
	Base
	cfg   CygwinConfig
	ln    net.Listener
	nonce [rendezvous.NonceSize]byte
}

// NewCygwinListener returns a Listener that also implements Handshaker.
func NewCygwinListener(cfg CygwinConfig) Listener {
	return &cygwinListener{Base: NewBase(), cfg: cfg}
}

func (l *cygwinListener) Name() string { return l.cfg.ListenerName }

func (l *cygwinListener) Run(ctx context.Context, delegate DelegateFunc) error {
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
	if err := rendezvous.WriteCygwin(l.cfg.NoncePath, port, nonce); err != nil {
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

// Handshake performs the Cygwin 4-way exchange: read the client's nonce,
// verify it, write it back, read the client's 12-byte identity record, then
// write the server's own identity record (§6, §7 error kind Handshake).
func (l *cygwinListener) Handshake(_ context.Context, conn net.Conn) error {
	var got [rendezvous.NonceSize]byte
	if _, err := io.ReadFull(conn, got[:]); err != nil {
		return fmt.Errorf("listener %s: read nonce: %w", l.Name(), err)
	}
	if subtle.ConstantTimeCompare(got[:], l.nonce[:]) != 1 {
		return fmt.Errorf("listener %s: nonce mismatch", l.Name())
	}
	if _, err := conn.Write(l.nonce[:]); err != nil {
		return fmt.Errorf("listener %s: write nonce: %w", l.Name(), err)
	}

	var peer [12]byte
	if _, err := io.ReadFull(conn, peer[:]); err != nil {
		return fmt.Errorf("listener %s: read peer identity: %w", l.Name(), err)
	}

	var self [12]byte
	binary.LittleEndian.PutUint32(self[0:4], uint32(os.Getpid()))
	if _, err := conn.Write(self[:]); err != nil {
		return fmt.Errorf("listener %s: write identity: %w", l.Name(), err)
	}
	return nil
}
