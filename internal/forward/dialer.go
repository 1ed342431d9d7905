package forward

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

// Dialer opens the peer connection a forwarded connection is bridged to
// (§4.5 "opens the peer connection"). Known implementations reach a plain
// TCP-nonce upstream or a Cygwin-emulation upstream (§6).
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// TCPNonceDialer dials a TCP-nonce-protected target: it reads the target's
// rendezvous file for the listening port and shared nonce, connects, and
// sends the nonce as the connection's first bytes, mirroring the client
// side of the handshake internal/listener's assuanListener performs as a
// server (§6).
type TCPNonceDialer struct {
	// NoncePath is the target's rendezvous file.
	NoncePath string
}

// Dial implements Dialer.
func (d *TCPNonceDialer) Dial(ctx context.Context) (net.Conn, error) {
	port, nonce, err := rendezvous.ReadPlain(d.NoncePath)
	if err != nil {
		return nil, fmt.Errorf("forward: read rendezvous file %s: %w", d.NoncePath, err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("forward: dial target on port %d: %w", port, err)
	}

	if _, err := conn.Write(nonce[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("forward: send nonce to target: %w", err)
	}
	return conn, nil
}

// CygwinNonceDialer dials a Cygwin-emulation target: it reads the target's
// Cygwin-format rendezvous file, connects, and performs the client side of
// the 4-way exchange (send nonce, read it echoed back, send this process's
// identity record, read the target's) that internal/listener's
// cygwinListener performs as a server (§6).
type CygwinNonceDialer struct {
	// NoncePath is the target's Cygwin-format rendezvous file.
	NoncePath string
}

// Dial implements Dialer.
func (d *CygwinNonceDialer) Dial(ctx context.Context) (net.Conn, error) {
	port, nonce, err := rendezvous.ReadCygwin(d.NoncePath)
	if err != nil {
		return nil, fmt.Errorf("forward: read cygwin rendezvous file %s: %w", d.NoncePath, err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("forward: dial cygwin target on port %d: %w", port, err)
	}

	if err := cygwinClientHandshake(conn, nonce); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// cygwinClientHandshake performs the client side of the Cygwin 4-way
// exchange: send nonce, read it echoed back, send this process's 12-byte
// identity record, read the target's.
func cygwinClientHandshake(conn net.Conn, nonce [rendezvous.NonceSize]byte) error {
	if _, err := conn.Write(nonce[:]); err != nil {
		return fmt.Errorf("forward: send cygwin nonce: %w", err)
	}
	var echoed [rendezvous.NonceSize]byte
	if _, err := io.ReadFull(conn, echoed[:]); err != nil {
		return fmt.Errorf("forward: read echoed cygwin nonce: %w", err)
	}
	if subtle.ConstantTimeCompare(echoed[:], nonce[:]) != 1 {
		return fmt.Errorf("forward: cygwin nonce echo mismatch")
	}

	var self [12]byte
	binary.LittleEndian.PutUint32(self[0:4], uint32(os.Getpid()))
	if _, err := conn.Write(self[:]); err != nil {
		return fmt.Errorf("forward: send cygwin identity: %w", err)
	}
	var peer [12]byte
	if _, err := io.ReadFull(conn, peer[:]); err != nil {
		return fmt.Errorf("forward: read peer cygwin identity: %w", err)
	}
	return nil
}
