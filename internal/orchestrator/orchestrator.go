// Package orchestrator builds and runs the full set of listeners, upstream
// clients, connection managers and the dispatcher from a config.File (§4.7).
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/websoft9/agentbridge/internal/config"
	"github.com/websoft9/agentbridge/internal/dispatcher"
	"github.com/websoft9/agentbridge/internal/forward"
	"github.com/websoft9/agentbridge/internal/listener"
	"github.com/websoft9/agentbridge/internal/proxy"
	"github.com/websoft9/agentbridge/internal/upstream"
)

// acceptRateLimit bounds how fast a single listener will hand off newly
// accepted connections, the same defensive-in-depth role
// golang.org/x/time/rate plays in the teacher's tunnel.Server against a
// client opening connections faster than the dispatcher can drain them.
const acceptRateLimit = rate.Limit(200)
const acceptBurst = 50

// Orchestrator owns every listener, client and manager built from one
// config.File, and drives their start/stop sequencing (§4.7).
type Orchestrator struct {
	listeners  []listener.Listener
	forwarding map[string]bool
	limiters   map[string]*rate.Limiter

	proxyMgr   *proxy.Manager
	forwardMgr *forward.Manager
	dispatcher *dispatcher.Dispatcher
	logger     zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Build constructs an Orchestrator from f without starting anything.
// Exactly one listener is permitted per forwarding section; any number of
// non-forwarding listeners may multiplex through the single dispatcher.
// At least one client must be configured, or Build fails (§4.7).
func Build(f *config.File) (*Orchestrator, error) {
	var clients []upstream.Client
	var listenerSections []config.Section

	for _, s := range f.Sections {
		switch s.Role {
		case config.RoleClient:
			c, err := buildClient(s)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: section %q: %w", s.Name, err)
			}
			clients = append(clients, c)
		case config.RoleListener:
			listenerSections = append(listenerSections, s)
		}
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("orchestrator: at least one client section is required")
	}

	o := &Orchestrator{
		forwarding: make(map[string]bool),
		limiters:   make(map[string]*rate.Limiter),
		dispatcher: dispatcher.New(clients),
		forwardMgr: forward.NewManager(),
		logger:     log.With().Str("component", "orchestrator").Logger(),
	}
	o.proxyMgr = proxy.NewManager(o.dispatcher)

	for _, s := range listenerSections {
		lis, err := buildListener(s)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: section %q: %w", s.Name, err)
		}
		o.listeners = append(o.listeners, lis)
		o.limiters[s.Name] = rate.NewLimiter(acceptRateLimit, acceptBurst)

		if s.ForwardSocketPath != "" {
			o.forwarding[s.Name] = true
			o.forwardMgr.RegisterTarget(s.Name, forwardDialerFor(s))
		}
	}

	return o, nil
}

// Run launches one goroutine per listener, then runs the dispatcher on the
// calling goroutine, and blocks until ctx is cancelled and the listeners
// have exited. The managers need no start step: they spawn a goroutine per
// delegated connection.
func (o *Orchestrator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for _, lis := range o.listeners {
		o.wg.Add(1)
		go o.runListener(ctx, lis)
	}

	o.dispatcher.Run(ctx)
	o.wg.Wait()
}

// Stop cancels every listener and the dispatcher, then waits for listener
// goroutines to exit (§4.7 "stop dispatcher, cancel listeners, join
// listener threads, stop both managers").
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	for _, lis := range o.listeners {
		lis.Cancel()
	}
	o.wg.Wait()
}

// ProxyActiveCount and ForwardActiveCount expose live connection counts for
// diagnostics and tests.
func (o *Orchestrator) ProxyActiveCount() int   { return o.proxyMgr.ActiveCount() }
func (o *Orchestrator) ForwardActiveCount() int { return o.forwardMgr.ActiveCount() }

func (o *Orchestrator) runListener(ctx context.Context, lis listener.Listener) {
	defer o.wg.Done()
	logger := o.logger.With().Str("listener", lis.Name()).Logger()

	delegate := o.delegateFor(lis)
	if err := lis.Run(ctx, delegate); err != nil {
		logger.Error().Err(err).Msg("listener exited with error")
	}
}

// forwardDialerFor picks the Dialer matching a forwarding section's target
// protocol: Cygwin sections dial through the Cygwin 4-way exchange, every
// other kind dials the plain TCP-nonce exchange (§6).
func forwardDialerFor(s config.Section) forward.Dialer {
	if s.Type == config.TypeCygwin {
		return &forward.CygwinNonceDialer{NoncePath: s.ForwardSocketPath}
	}
	return &forward.TCPNonceDialer{NoncePath: s.ForwardSocketPath}
}

// delegateFor returns the DelegateFunc for lis: rate-limited hand-off to
// the forward manager if lis forwards raw bytes, or to the proxy manager
// otherwise (§4.7).
func (o *Orchestrator) delegateFor(lis listener.Listener) listener.DelegateFunc {
	target := o.proxyMgr.Delegate
	if o.forwarding[lis.Name()] {
		target = o.forwardMgr.Delegate
	}
	limiter := o.limiters[lis.Name()]

	return func(conn net.Conn, l listener.Listener, isSocket bool) error {
		if !limiter.Allow() {
			return fmt.Errorf("orchestrator: listener %s: accept rate exceeded", l.Name())
		}
		return target(conn, l, isSocket)
	}
}
