package law

import (
	"fmt"
	"sync"
)

// fakeContext is an in-memory Context over plain values.
type fakeContext struct {
	mu     sync.Mutex
	state  map[string]any
	n      int
	failOn map[string]error
}

func newFakeContext(state map[string]any) *fakeContext {
	if state == nil {
		state = make(map[string]any)
	}
	return &fakeContext{state: state, failOn: make(map[string]error)}
}

func (c *fakeContext) GetState(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

func (c *fakeContext) SetState(key string, value any) (Write, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failOn[key]; err != nil {
		return Write{}, err
	}
	c.n++
	c.state[key] = value
	return Write{StoreKey: key, EventID: fmt.Sprintf("w-%d", c.n), Value: value}, nil
}
