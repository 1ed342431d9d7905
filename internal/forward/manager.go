package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/websoft9/agentbridge/internal/listener"
)

const defaultBufSize = 4 * 1024

// halfCloser is implemented by connection types that support independent
// half-close of their read and write sides (*net.TCPConn, *net.UnixConn).
// Pipes and other handle kinds fall back to a full Close on their first EOF.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Manager is the forward connection manager (§4.5): it bridges an accepted
// connection to a dialed peer and pumps bytes in both directions until
// both directions have reached EOF (or a write fails), observing the spec's
// fixed half-close order on each EOF.
// Grounded on tunnel.Server's forwardConn, generalised from a single
// hardcoded target to a per-listener Dialer lookup.
type Manager struct {
	mu      sync.Mutex
	dialers map[string]Dialer
	bufSize int
	logger  zerolog.Logger

	nextID int64
	active int64
}

// NewManager returns a Manager with no registered targets; call
// RegisterTarget for each forwarding listener before starting it.
func NewManager() *Manager {
	return &Manager{
		dialers: make(map[string]Dialer),
		bufSize: defaultBufSize,
		logger:  log.With().Str("component", "forward").Logger(),
	}
}

// RegisterTarget associates a forwarding listener's name with the Dialer
// used to reach its target (§4.7 "wires each forwarding listener ... with a
// stored target path").
func (m *Manager) RegisterTarget(listenerName string, d Dialer) {
	m.mu.Lock()
	m.dialers[listenerName] = d
	m.mu.Unlock()
}

// ActiveCount reports the number of forwarded connections currently bridged.
func (m *Manager) ActiveCount() int { return int(atomic.LoadInt64(&m.active)) }

// Delegate is a listener.DelegateFunc: it takes ownership of conn and runs
// the bridge lifecycle on new goroutines.
func (m *Manager) Delegate(conn net.Conn, lis listener.Listener, isSocket bool) error {
	m.mu.Lock()
	dialer, ok := m.dialers[lis.Name()]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("forward: no target registered for listener %s", lis.Name())
	}

	id := strconv.FormatInt(atomic.AddInt64(&m.nextID, 1), 10)
	go m.run(id, conn, lis, dialer)
	return nil
}

func (m *Manager) run(id string, local net.Conn, lis listener.Listener, dialer Dialer) {
	logger := m.logger.With().Str("conn", id).Logger()
	atomic.AddInt64(&m.active, 1)
	defer atomic.AddInt64(&m.active, -1)
	defer local.Close()

	ctx := context.Background()
	if hs, ok := lis.(listener.Handshaker); ok {
		if err := hs.Handshake(ctx, local); err != nil {
			logger.Debug().Err(err).Msg("handshake failed")
			return
		}
	}

	peer, err := dialer.Dial(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("dial target failed")
		return
	}
	defer peer.Close()

	fctx := newContext(id, local, peer, m.bufSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go m.pump(&wg, fctx, 0, logger)
	go m.pump(&wg, fctx, 1, logger)
	wg.Wait()
}

// pump runs slot i's Ready→Read→Write loop until EOF (§4.5). On EOF it
// half-closes i's receive side and the peer's send side, in that order,
// matching the fixed half-close sequence the spec mandates.
func (m *Manager) pump(wg *sync.WaitGroup, c *Context, i int, logger zerolog.Logger) {
	defer wg.Done()
	s := c.slots[i]
	p := c.slots[c.other(i)]
	s.state = SlotReady

	for {
		s.state = SlotRead
		n, err := s.conn.Read(s.buf)
		if n == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Int("slot", i).Msg("read error")
			}
			s.state = SlotShutdown
			halfClose(s.conn, p.conn, logger)
			return
		}

		s.state = SlotWrite
		need := n
		offset := 0
		for need > 0 {
			written, err := p.conn.Write(s.buf[offset:n])
			if err != nil {
				logger.Debug().Err(err).Int("slot", i).Msg("write error")
				s.state = SlotShutdown
				// A write failure means the peer side is unusable in either
				// direction: close both ends outright rather than half-closing,
				// so the sibling pump's blocked Read is guaranteed to unblock.
				s.conn.Close()
				p.conn.Close()
				return
			}
			need -= written
			offset += written
		}
		s.state = SlotReady
	}
}

// halfClose shuts down recvConn's receive side and sendConn's send side. A
// sendConn that does not support half-close (named pipes and other
// stream-file handles) is closed outright; a recvConn that does not support
// it is left as it is.
func halfClose(recvConn, sendConn net.Conn, logger zerolog.Logger) {
	if hc, ok := recvConn.(halfCloser); ok {
		if err := hc.CloseRead(); err != nil {
			logger.Debug().Err(err).Msg("close-read failed")
		}
	}
	if hc, ok := sendConn.(halfCloser); ok {
		if err := hc.CloseWrite(); err != nil {
			logger.Debug().Err(err).Msg("close-write failed")
		}
	} else {
		sendConn.Close()
	}
}
