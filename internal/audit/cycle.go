package audit

import "sync"

// CycleDetector remembers, per flow, which reactions have already written
// which value.
//
// A reaction is identified by (law, target, value hash). If the same law
// would write the same value into the same target twice within one flow, the
// propagation has come back around (A → B → A) and the second write is
// skipped.
//
// Thread-safe.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // flow → cycle key
}

// NewCycleDetector creates an empty detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		history: make(map[string]map[string]bool),
	}
}

func cycleKey(lawName, target, valueHash string) string {
	return lawName + "\x00" + target + "\x00" + valueHash
}

// WouldCycle reports whether the reaction already wrote this value in flow.
func (c *CycleDetector) WouldCycle(flow, lawName, target, valueHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history[flow][cycleKey(lawName, target, valueHash)]
}

// Record marks the reaction as written in flow.
func (c *CycleDetector) Record(flow, lawName, target, valueHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[flow] == nil {
		c.history[flow] = make(map[string]bool)
	}
	c.history[flow][cycleKey(lawName, target, valueHash)] = true
}

// Clear forgets the flow.
func (c *CycleDetector) Clear(flow string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, flow)
}

// HistorySize returns the number of flows with recorded reactions.
func (c *CycleDetector) HistorySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// FlowHistorySize returns the number of reactions recorded for flow.
func (c *CycleDetector) FlowHistorySize(flow string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history[flow])
}
