package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/websoft9/agentbridge/internal/frame"
	"github.com/websoft9/agentbridge/internal/upstream"
)

// fakeClient is a scripted upstream.Client for policy tests.
type fakeClient struct {
	name     string
	reply    []byte
	err      error
	calls    int
	mu       sync.Mutex
	lastSeen []byte
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Exchange(_ context.Context, msg *frame.Message) error {
	f.mu.Lock()
	f.calls++
	f.lastSeen = append([]byte(nil), msg.Data...)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	msg.Data = append(msg.Data[:0], f.reply...)
	return nil
}

func (f *fakeClient) Close() error { return nil }

func postAndWait(t *testing.T, d *Dispatcher, msg *frame.Message) bool {
	t.Helper()
	done := make(chan bool, 1)
	d.Post(Job{Message: msg, OnReply: func(ok bool) { done <- ok }})
	select {
	case ok := <-done:
		return ok
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not reply in time")
		return false
	}
}

func runDispatcher(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return cancel
}

func TestAddIdentitySendsToFirstUpstreamOnly(t *testing.T) {
	a := &fakeClient{name: "a", reply: []byte{frame.OpSuccess}}
	b := &fakeClient{name: "b", reply: []byte{frame.OpSuccess}}
	d := New([]upstream.Client{a, b})
	stop := runDispatcher(t, d)
	defer stop()

	msg := &frame.Message{Data: []byte{frame.OpAddIdentity, 1, 2, 3}}
	postAndWait(t, d, msg)

	if a.calls != 1 {
		t.Fatalf("expected first upstream called once, got %d", a.calls)
	}
	if b.calls != 0 {
		t.Fatalf("expected second upstream not called, got %d", b.calls)
	}
	if msg.Opcode() != frame.OpSuccess {
		t.Fatalf("expected reply opcode SUCCESS, got %d", msg.Opcode())
	}
}

func TestRemoveIdentityFirstSuccessWins(t *testing.T) {
	a := &fakeClient{name: "a", reply: []byte{frame.OpFailure}}
	b := &fakeClient{name: "b", reply: []byte{frame.OpSuccess}}
	c := &fakeClient{name: "c", reply: []byte{frame.OpSuccess}}
	d := New([]upstream.Client{a, b, c})
	stop := runDispatcher(t, d)
	defer stop()

	msg := &frame.Message{Data: []byte{frame.OpRemoveIdentity, 9}}
	postAndWait(t, d, msg)

	if msg.Opcode() != frame.OpSuccess {
		t.Fatalf("expected SUCCESS, got %d", msg.Opcode())
	}
	if c.calls != 0 {
		t.Fatalf("expected third upstream not tried once second succeeded, got %d calls", c.calls)
	}
}

func TestRemoveIdentityAllFailReturnsFailure(t *testing.T) {
	a := &fakeClient{name: "a", reply: []byte{frame.OpFailure}}
	b := &fakeClient{name: "b", err: context.DeadlineExceeded}
	d := New([]upstream.Client{a, b})
	stop := runDispatcher(t, d)
	defer stop()

	msg := &frame.Message{Data: []byte{frame.OpRemoveIdentity, 9}}
	postAndWait(t, d, msg)

	if msg.Opcode() != frame.OpFailure {
		t.Fatalf("expected FAILURE, got %d", msg.Opcode())
	}
}

func TestRemoveAllIdentitiesAlwaysSucceeds(t *testing.T) {
	a := &fakeClient{name: "a", err: context.DeadlineExceeded}
	b := &fakeClient{name: "b", reply: []byte{frame.OpFailure}}
	d := New([]upstream.Client{a, b})
	stop := runDispatcher(t, d)
	defer stop()

	msg := &frame.Message{Data: []byte{frame.OpRemoveAllIdentities}}
	postAndWait(t, d, msg)

	if msg.Opcode() != frame.OpSuccess {
		t.Fatalf("expected SUCCESS regardless of upstream outcomes, got %d", msg.Opcode())
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected broadcast to both upstreams, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestRequestIdentitiesMergesPreservingOrder(t *testing.T) {
	idA := frame.EncodeIdentitiesAnswer([]frame.Identity{{Blob: []byte("keyA"), Comment: "a"}})
	idB := frame.EncodeIdentitiesAnswer([]frame.Identity{
		{Blob: []byte("keyB1"), Comment: "b1"},
		{Blob: []byte("keyB2"), Comment: "b2"},
	})
	a := &fakeClient{name: "a", reply: idA}
	b := &fakeClient{name: "b", reply: idB}
	d := New([]upstream.Client{a, b})
	stop := runDispatcher(t, d)
	defer stop()

	msg := &frame.Message{Data: []byte{frame.OpRequestIdentities}}
	postAndWait(t, d, msg)

	ids, err := frame.DecodeIdentitiesAnswer(msg.Data)
	if err != nil {
		t.Fatalf("decode merged answer: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(ids))
	}
	wantComments := []string{"a", "b1", "b2"}
	for i, c := range wantComments {
		if ids[i].Comment != c {
			t.Fatalf("identity %d: want comment %q, got %q", i, c, ids[i].Comment)
		}
	}
}

func TestUnknownOpcodeRepliesFailure(t *testing.T) {
	a := &fakeClient{name: "a", reply: []byte{frame.OpSuccess}}
	d := New([]upstream.Client{a})
	stop := runDispatcher(t, d)
	defer stop()

	msg := &frame.Message{Data: []byte{200}}
	postAndWait(t, d, msg)

	if msg.Opcode() != frame.OpFailure {
		t.Fatalf("expected FAILURE for unknown opcode, got %d", msg.Opcode())
	}
	if a.calls != 0 {
		t.Fatalf("expected no upstream called for unknown opcode, got %d", a.calls)
	}
}
