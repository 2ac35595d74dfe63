package audit

import (
	"context"
	"sync"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
)

// tracked is one watched store and its drain loop state.
type tracked struct {
	key   string
	store causal.Handle
	rules []law.Rule

	mu          sync.Mutex
	unwatch     func()
	running     bool   // a drain loop owns the store
	forced      bool   // next pass evaluates even if the head is unchanged
	lastEventID string // head evaluated by the last pass
	closed      bool   // auditor stopped
}

// trigger requests an evaluation of t. If no drain loop is running, the
// caller becomes the drainer and evaluates inline; otherwise the running loop
// picks the change up before it exits.
func (a *Auditor) trigger(ctx context.Context, t *tracked, force bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if force {
		t.forced = true
	}
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	a.drain(ctx, t)
}

// drain evaluates t until its head stops changing.
//
// Flows touched by the loop stay held until it exits, so a propagation that
// comes back to this store keeps its cycle and quota state.
func (a *Auditor) drain(ctx context.Context, t *tracked) {
	held := make(map[string]bool)
	finished := false
	defer func() {
		if !finished {
			// Unwinding from a panic: give up ownership so later
			// notifications can drain again.
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
		}
		for flow := range held {
			a.flows.release(flow)
		}
	}()

	for {
		t.mu.Lock()
		if t.closed {
			t.running = false
			finished = true
			t.mu.Unlock()
			return
		}
		ev, hasEvent := t.store.Latest()
		head := ev.ID
		if !t.forced && head == t.lastEventID {
			t.running = false
			finished = true
			t.mu.Unlock()
			return
		}
		t.forced = false
		t.lastEventID = head
		t.mu.Unlock()

		if !hasEvent {
			// Nothing recorded yet: evaluate the initial value.
			ev = causal.Event[any]{
				StoreKey:   t.key,
				UniverseID: t.store.CurrentUniverse(),
				Value:      t.store.Value(),
				Flow:       "initial:" + t.key,
			}
		}
		if !held[ev.Flow] {
			a.flows.acquire(ev.Flow)
			held[ev.Flow] = true
		}

		a.evaluateStore(ctx, t, ev)
	}
}
