package forward

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/websoft9/agentbridge/internal/rendezvous"
)

// TestCygwinNonceDialerPerformsFullExchange starts a bare TCP server playing
// the listener side of the Cygwin 4-way exchange and asserts the dialer
// drives it in the right order: nonce, echoed nonce, peer identity, own
// identity.
func TestCygwinNonceDialerPerformsFullExchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	nonce, err := rendezvous.NewNonce()
	if err != nil {
		t.Fatalf("new nonce: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	noncePath := filepath.Join(dir, "nonce")
	if err := rendezvous.WriteCygwin(noncePath, port, nonce); err != nil {
		t.Fatalf("write rendezvous file: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(2 * time.Second))

		var got [rendezvous.NonceSize]byte
		if _, err := io.ReadFull(conn, got[:]); err != nil {
			serverErr <- err
			return
		}
		if got != nonce {
			serverErr <- errors.New("nonce mismatch")
			return
		}
		if _, err := conn.Write(got[:]); err != nil {
			serverErr <- err
			return
		}

		var peerIdentity [12]byte
		if _, err := io.ReadFull(conn, peerIdentity[:]); err != nil {
			serverErr <- err
			return
		}

		selfIdentity := make([]byte, 12)
		if _, err := conn.Write(selfIdentity); err != nil {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	d := &CygwinNonceDialer{NoncePath: noncePath}
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Fatalf("server side of exchange failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of exchange")
	}
}
