// Package dispatcher implements the message dispatcher (§4.6): a single
// worker draining a FIFO of posted messages, applying a per-opcode fan-out
// policy across the configured upstream clients.
package dispatcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/websoft9/agentbridge/internal/frame"
	"github.com/websoft9/agentbridge/internal/upstream"
)

// Job is one FIFO entry: a decoded message and the reply callback to
// invoke once a policy has produced (or failed to produce) an outcome. The
// callback plays the role of the proxy manager's hold-token (§9): it is
// safe to call after the originating connection has already gone away.
type Job struct {
	Message *frame.Message
	OnReply func(ok bool)
}

// Dispatcher is the FIFO+condvar single-worker dispatcher described in
// §4.6/§5. Grounded on the teacher's worker.Pool, generalised from a
// many-worker task queue down to the exactly-one-worker shape the spec
// requires (the dispatcher never issues two parallel exchanges to the same
// client, so no additional worker would help).
type Dispatcher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Job
	clients   []upstream.Client
	cancelled bool
	logger    zerolog.Logger
}

// New returns a Dispatcher over clients, tried in the given order for every
// policy that iterates (§4.6).
func New(clients []upstream.Client) *Dispatcher {
	d := &Dispatcher{
		clients: clients,
		logger:  log.With().Str("component", "dispatcher").Logger(),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Post appends job to the FIFO and wakes the worker (§4.6 "post").
func (d *Dispatcher) Post(job Job) {
	d.mu.Lock()
	d.queue = append(d.queue, job)
	d.mu.Unlock()
	d.cond.Signal()
}

// Run drains the FIFO until ctx is cancelled or Stop is called. It is meant
// to be run on its own goroutine — the "one dispatcher worker" of §5.
func (d *Dispatcher) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.cancelled {
			d.cond.Wait()
		}
		if d.cancelled && len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		job := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		ok := d.process(ctx, job.Message)
		if job.OnReply != nil {
			job.OnReply(ok)
		}
	}
}

// Stop wakes the worker and tells it to exit once the FIFO drains.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.cancelled = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// process applies the opcode policy table to msg in place and reports
// whether a reply was produced (§4.6). A false return means the connection
// should be destroyed without a reply (§4.4 failure model).
func (d *Dispatcher) process(ctx context.Context, msg *frame.Message) bool {
	if len(msg.Data) == 0 {
		msg.SetPayload(frame.FailurePayload())
		return true
	}

	logger := d.logger.With().Uint8("opcode", msg.Opcode()).Logger()

	switch msg.Opcode() {
	case frame.OpAddIdentity:
		policyFirstMatch(ctx, d.clients, msg)
	case frame.OpRemoveIdentity:
		policyFirstSuccess(ctx, d.clients, msg, frame.OpSuccess)
	case frame.OpRemoveAllIdentities:
		policyBroadcast(ctx, d.clients, msg)
	case frame.OpRequestIdentities:
		policyMergeIdentities(ctx, d.clients, msg)
	case frame.OpSignRequest:
		policyFirstSuccess(ctx, d.clients, msg, frame.OpSignResponse)
	default:
		logger.Debug().Msg("unrecognised opcode, replying failure")
		msg.SetPayload(frame.FailurePayload())
	}
	return true
}
