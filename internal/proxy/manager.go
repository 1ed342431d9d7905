package proxy

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/websoft9/agentbridge/internal/dispatcher"
	"github.com/websoft9/agentbridge/internal/frame"
	"github.com/websoft9/agentbridge/internal/listener"
)

// Dispatcher is the subset of dispatcher.Dispatcher the manager depends on,
// kept narrow so tests can supply a fake (§4.6).
type Dispatcher interface {
	Post(job dispatcher.Job)
}

// Manager is the proxy connection manager (§4.4): it drives every
// non-forwarding connection's read-dispatch-reply-write cycle. Grounded on
// the teacher's tunnel.Server, which likewise owns one goroutine per
// accepted connection and tears it down on the first I/O error.
type Manager struct {
	arena      *Arena
	dispatcher Dispatcher
	logger     zerolog.Logger

	nextConnID uint64
}

// NewManager returns a Manager posting decoded messages to d.
func NewManager(d Dispatcher) *Manager {
	return &Manager{
		arena:      NewArena(),
		dispatcher: d,
		logger:     log.With().Str("component", "proxy").Logger(),
	}
}

// Delegate is a listener.DelegateFunc: it takes ownership of conn and runs
// its full lifecycle on a new goroutine (§4.4 "On delegate").
func (m *Manager) Delegate(conn net.Conn, lis listener.Listener, isSocket bool) error {
	id := strconv.FormatUint(atomic.AddUint64(&m.nextConnID, 1), 10)
	ctx := newContext(id, conn, lis, isSocket)
	handle := m.arena.Insert(ctx)

	go m.run(ctx, handle)
	return nil
}

// ActiveCount reports the number of connections currently being served, for
// tests and diagnostics.
func (m *Manager) ActiveCount() int { return m.arena.Len() }

func (m *Manager) run(ctx *Context, handle Handle) {
	logger := m.logger.With().Str("conn", ctx.ID).Logger()
	defer func() {
		ctx.State = Destroyed
		m.arena.Remove(handle)
		ctx.Conn.Close()
	}()

	ctx.State = Handshake
	if hs, ok := ctx.Listener.(listener.Handshaker); ok {
		if err := hs.Handshake(context.Background(), ctx.Conn); err != nil {
			logger.Debug().Err(err).Msg("handshake failed")
			return
		}
	}

	ctx.State = Ready
	for {
		ctx.State = ReadHeader
		msg := &frame.Message{}
		if err := frame.ReadMessage(ctx.Conn, msg); err != nil {
			if err != io.EOF {
				logger.Debug().Err(err).Msg("read message failed")
			}
			return
		}
		ctx.State = ReadBody

		ctx.State = WaitReply
		outcome := m.dispatch(ctx, handle, msg)
		if !outcome.ok {
			logger.Debug().Msg("dispatch reported failure, destroying connection")
			return
		}

		ctx.State = WriteReply
		if err := frame.WriteMessage(ctx.Conn, msg); err != nil {
			logger.Debug().Err(err).Msg("write reply failed")
			return
		}
		ctx.State = Ready
	}
}

// dispatch posts msg to the dispatcher and blocks for its reply. The reply
// callback is a weak reference through handle/arena (§9): if ctx has
// already been destroyed by the time the dispatcher worker gets to it (the
// connection's own goroutine exited on its own I/O error concurrently), the
// callback's arena lookup simply misses and no one is listening on
// ctx.reply — safe because dispatch is the only goroutine that ever reads it.
func (m *Manager) dispatch(ctx *Context, handle Handle, msg *frame.Message) replyOutcome {
	m.dispatcher.Post(dispatcher.Job{
		Message: msg,
		OnReply: func(ok bool) {
			if c, found := m.arena.Get(handle); found {
				select {
				case c.reply <- replyOutcome{ok: ok}:
				default:
				}
			}
		},
	})
	return <-ctx.reply
}
