package listener

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/websoft9/agentbridge/internal/rendezvous"
)

func TestBaseCancelIdempotent(t *testing.T) {
	b := NewBase()
	if b.Cancelled() {
		t.Fatal("fresh Base reports cancelled")
	}
	b.Cancel()
	b.Cancel() // must not panic on double-close
	if !b.Cancelled() {
		t.Fatal("Base did not report cancelled after Cancel")
	}
	select {
	case <-b.Done():
	default:
		t.Fatal("Done channel not closed after Cancel")
	}
}

func TestUnixListenerAcceptsAndDelegates(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "agent.sock")
	lis := NewUnixListener(UnixConfig{ListenerName: "test", Path: sockPath})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delegated := make(chan bool, 1)
	runErr := make(chan error, 1)
	go func() {
		runErr <- lis.Run(ctx, func(conn net.Conn, lis Listener, isSocket bool) error {
			delegated <- isSocket
			conn.Close()
			return nil
		})
	}()

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial unix socket: %v", err)
	}
	conn.Close()

	select {
	case isSocket := <-delegated:
		if !isSocket {
			t.Fatal("expected isSocket=true for unix listener delegation")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delegation")
	}

	lis.Cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned error after Cancel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Cancel")
	}
}

func TestAssuanHandshakeAcceptsMatchingNonce(t *testing.T) {
	dir := t.TempDir()
	noncePath := filepath.Join(dir, "nonce")
	lisIface := NewAssuanListener(AssuanConfig{ListenerName: "assuan", NoncePath: noncePath})
	lis := lisIface.(*assuanListener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCh := make(chan net.Conn, 1)
	go lis.Run(ctx, func(conn net.Conn, _ Listener, _ bool) error {
		connCh <- conn
		return nil
	})

	var port int
	var nonce [rendezvous.NonceSize]byte
	var err error
	for i := 0; i < 50; i++ {
		port, nonce, err = rendezvous.ReadPlain(noncePath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("read rendezvous file: %v", err)
	}

	client, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if _, err := client.Write(nonce[:]); err != nil {
		t.Fatalf("write nonce: %v", err)
	}

	select {
	case conn := <-connCh:
		defer conn.Close()
		if err := lis.Handshake(ctx, conn); err != nil {
			t.Fatalf("Handshake failed on matching nonce: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection")
	}
	lis.Cancel()
}

func TestAssuanHandshakeRejectsWrongNonce(t *testing.T) {
	dir := t.TempDir()
	noncePath := filepath.Join(dir, "nonce")
	lisIface := NewAssuanListener(AssuanConfig{ListenerName: "assuan", NoncePath: noncePath})
	lis := lisIface.(*assuanListener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCh := make(chan net.Conn, 1)
	go lis.Run(ctx, func(conn net.Conn, _ Listener, _ bool) error {
		connCh <- conn
		return nil
	})

	var port int
	var err error
	for i := 0; i < 50; i++ {
		port, _, err = rendezvous.ReadPlain(noncePath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("read rendezvous file: %v", err)
	}

	client, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	wrong := make([]byte, rendezvous.NonceSize)
	if _, err := client.Write(wrong); err != nil {
		t.Fatalf("write wrong nonce: %v", err)
	}

	select {
	case conn := <-connCh:
		defer conn.Close()
		if err := lis.Handshake(ctx, conn); err == nil {
			t.Fatal("Handshake accepted a wrong nonce")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection")
	}
	lis.Cancel()
}

// TestCygwinHandshakeFullExchange drives the client side of the 4-way
// exchange end to end: nonce, echoed nonce, client identity, server
// identity. A listener that skips the nonce echo, echoes the wrong bytes, or
// never writes its own identity makes one of the client's reads fail or run
// into the 2-second deadline.
func TestCygwinHandshakeFullExchange(t *testing.T) {
	dir := t.TempDir()
	noncePath := filepath.Join(dir, "nonce")
	lisIface := NewCygwinListener(CygwinConfig{ListenerName: "cygwin", NoncePath: noncePath})
	lis := lisIface.(*cygwinListener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCh := make(chan net.Conn, 1)
	go lis.Run(ctx, func(conn net.Conn, _ Listener, _ bool) error {
		connCh <- conn
		return nil
	})

	var port int
	var nonce [rendezvous.NonceSize]byte
	var err error
	for i := 0; i < 50; i++ {
		port, nonce, err = rendezvous.ReadCygwin(noncePath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("read cygwin rendezvous file: %v", err)
	}

	client, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(2 * time.Second))

	var conn net.Conn
	select {
	case conn = <-connCh:
		defer conn.Close()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection")
	}

	handshakeErr := make(chan error, 1)
	go func() { handshakeErr <- lis.Handshake(ctx, conn) }()

	if _, err := client.Write(nonce[:]); err != nil {
		t.Fatalf("write nonce: %v", err)
	}

	var echoed [rendezvous.NonceSize]byte
	if _, err := io.ReadFull(client, echoed[:]); err != nil {
		t.Fatalf("read echoed nonce: %v", err)
	}
	if echoed != nonce {
		t.Fatalf("echoed nonce does not match: got %x want %x", echoed, nonce)
	}

	clientIdentity := make([]byte, 12)
	if _, err := client.Write(clientIdentity); err != nil {
		t.Fatalf("write client identity: %v", err)
	}

	serverIdentity := make([]byte, 12)
	if _, err := io.ReadFull(client, serverIdentity); err != nil {
		t.Fatalf("read server identity: %v", err)
	}

	select {
	case err := <-handshakeErr:
		if err != nil {
			t.Fatalf("Handshake returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Handshake did not return")
	}
	lis.Cancel()
}

