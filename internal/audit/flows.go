package audit

import "sync"

// flowTracker owns the per-flow propagation state: the cycle guard and the
// step quota. State is reference-counted by the drain loops that hold the flow
// and dropped when the last one releases it.
type flowTracker struct {
	mu       sync.Mutex
	maxSteps int
	refs     map[string]int
	quotas   map[string]*QuotaEnforcer
	cycles   *CycleDetector
}

func newFlowTracker(maxSteps int) *flowTracker {
	return &flowTracker{
		maxSteps: maxSteps,
		refs:     make(map[string]int),
		quotas:   make(map[string]*QuotaEnforcer),
		cycles:   NewCycleDetector(),
	}
}

func (f *flowTracker) acquire(flow string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[flow]++
}

func (f *flowTracker) release(flow string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs[flow]--
	if f.refs[flow] > 0 {
		return
	}
	delete(f.refs, flow)
	delete(f.quotas, flow)
	f.cycles.Clear(flow)
}

// step counts one auditor write in flow.
func (f *flowTracker) step(flow string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.quotas[flow]
	if !ok {
		q = NewQuotaEnforcer(f.maxSteps)
		f.quotas[flow] = q
	}
	return q.Check(flow)
}

// steps returns the writes counted so far in flow.
func (f *flowTracker) steps(flow string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.quotas[flow]; ok {
		return q.Current()
	}
	return 0
}

// active returns the number of flows currently held.
func (f *flowTracker) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refs)
}
