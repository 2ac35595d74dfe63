package telemetry

import "sync"

// DefaultCapacity is the Buffer capacity used when none is configured.
const DefaultCapacity = 1024

// Buffer is a bounded ring of entries. Once full, each Append evicts the
// oldest entry and increments the dropped counter.
//
// Safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	ring    []Entry
	start   int
	n       int
	dropped uint64
}

// NewBuffer creates a buffer holding at most capacity entries.
// capacity <= 0 means DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]Entry, capacity)}
}

// Append adds e, evicting the oldest entry when full.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n < len(b.ring) {
		b.ring[(b.start+b.n)%len(b.ring)] = e
		b.n++
		return
	}
	b.ring[b.start] = e
	b.start = (b.start + 1) % len(b.ring)
	b.dropped++
}

// Snapshot returns a copy of the retained entries, oldest first.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}

// Len returns the number of retained entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Dropped returns the number of entries evicted so far.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Record implements Sink.
func (b *Buffer) Record(e Entry) {
	b.Append(e)
}
