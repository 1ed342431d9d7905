package forward

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/websoft9/agentbridge/internal/listener"
)

// echoDialer dials a TCP echo server for the test target.
type echoDialer struct {
	addr string
}

func (d *echoDialer) Dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", d.addr)
}

// plainListener is a minimal listener.Listener stand-in with no Handshaker.
type plainListener struct{ name string }

func (p plainListener) Name() string                                         { return p.name }
func (p plainListener) Run(context.Context, listener.DelegateFunc) error     { return nil }
func (p plainListener) Cancel()                                              {}
func (p plainListener) Cancelled() bool                                      { return false }

func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestManagerBridgesBothDirections(t *testing.T) {
	addr := startEchoServer(t)
	m := NewManager()
	m.RegisterTarget("test", &echoDialer{addr: addr})

	local, remote := net.Pipe()
	if err := m.Delegate(local, plainListener{name: "test"}, false); err != nil {
		t.Fatalf("delegate: %v", err)
	}

	remote.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := remote.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(remote)
	buf := make([]byte, 4)
	if _, err := readFull(reader, buf); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected echoed %q, got %q", "ping", buf)
	}

	remote.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("expected manager to clean up connection after close, active=%d", m.ActiveCount())
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
