package causal

import (
	"sync"
	"sync/atomic"
)

// Store owns one store key's event log, the current value of every universe,
// and the branch graph.
//
// INVARIANTS:
//   - history only grows; events are never rewritten or removed
//   - Get() equals the value of the latest event of the current universe, or
//     the initial value while that universe has no events
//   - heads[u] is the position of the latest event of universe u
type Store[T any] struct {
	key     string
	initial T
	clock   Clock
	ids     IDGenerator

	mu       sync.RWMutex
	seq      *Sequence
	current  string
	history  []Event[T]
	index    map[string]int   // event id → position in history
	children map[string][]int // parent id → positions of direct children
	heads    map[string]int   // universe → position of its head event
	values   map[string]T     // universe → current value
	branches []Branch         // creation order
	branchIx map[string]int   // universe → position in branches

	subMu sync.Mutex
	subs  []*subscription[T]
}

type subscription[T any] struct {
	fn     func(Event[T])
	active atomic.Bool
}

type options struct {
	clock Clock
	ids   IDGenerator
}

// Option configures a Store.
type Option func(*options)

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDs sets the event id generator. Default: UUIDv7Generator.
func WithIDs(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// NewStore creates a store for key whose pre-history value is initial.
func NewStore[T any](key string, initial T, opts ...Option) *Store[T] {
	o := options{
		clock: SystemClock{},
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[T]{
		key:     key,
		initial: initial,
		clock:   o.clock,
		ids:     o.ids,
	}
	s.resetLocked()
	s.addBranchLocked(Branch{
		ID:        MainUniverse,
		Name:      MainUniverse,
		CreatedAt: stamp(o.clock.Now()),
	})
	s.current = MainUniverse
	return s
}

// resetLocked clears all history state. Caller holds mu (or owns s exclusively).
func (s *Store[T]) resetLocked() {
	s.seq = NewSequence()
	s.history = nil
	s.index = make(map[string]int)
	s.children = make(map[string][]int)
	s.heads = make(map[string]int)
	s.values = make(map[string]T)
	s.branches = nil
	s.branchIx = make(map[string]int)
}

// Key returns the store key.
func (s *Store[T]) Key() string {
	return s.key
}

// CurrentUniverse returns the universe reads and writes apply to.
func (s *Store[T]) CurrentUniverse() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Initial returns the pre-history value.
func (s *Store[T]) Initial() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial
}

// Get returns the current value of the current universe.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valueLocked(s.current)
}

// Set appends a set event to the current universe and notifies subscribers.
// Returns the new event id.
func (s *Store[T]) Set(value T) string {
	return s.SetWithMeta(value, Meta{})
}

// SetWithMeta is Set with attribution. It never fails: concurrent writers are
// serialized in insertion order.
func (s *Store[T]) SetWithMeta(value T, meta Meta) string {
	kind := meta.Kind
	if !kind.writable() {
		kind = KindSet
	}

	s.mu.Lock()
	universe := s.current
	ev := s.appendLocked(universe, value, kind, meta, s.headParentsLocked(universe))
	s.values[universe] = value
	s.mu.Unlock()

	s.notify(ev)
	return ev.ID
}

// Subscribe registers fn to be called synchronously, in subscription order,
// once per set, branch and merge on this store. The returned function removes
// the subscription and may be called any number of times.
func (s *Store[T]) Subscribe(fn func(Event[T])) (unsubscribe func()) {
	sub := &subscription[T]{fn: fn}
	sub.active.Store(true)

	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (s *Store[T]) SubscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// History returns a copy of the full event log in insertion order.
// Event values are shared with the store and must not be mutated.
func (s *Store[T]) History() []Event[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event[T], len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of events in the log.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// LastEventID returns the head event id of the current universe.
// Returns false while the universe has no events.
func (s *Store[T]) LastEventID() (string, bool) {
	ev, ok := s.Latest()
	if !ok {
		return "", false
	}
	return ev.ID, true
}

// Latest returns the head event of the current universe.
func (s *Store[T]) Latest() (Event[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.heads[s.current]
	if !ok {
		return Event[T]{}, false
	}
	return s.history[pos], true
}

func (s *Store[T]) valueLocked(universe string) T {
	if v, ok := s.values[universe]; ok {
		return v
	}
	return s.initial
}

func (s *Store[T]) headParentsLocked(universe string) []string {
	if pos, ok := s.heads[universe]; ok {
		return []string{s.history[pos].ID}
	}
	return []string{}
}

// appendLocked stamps and inserts a new event. Caller holds mu.
func (s *Store[T]) appendLocked(universe string, value T, kind EventKind, meta Meta, parents []string) Event[T] {
	id := s.ids.Generate()
	flow := meta.Flow
	if flow == "" {
		flow = id
	}

	ev := Event[T]{
		ID:         id,
		StoreKey:   s.key,
		UniverseID: universe,
		Timestamp:  stamp(s.clock.Now()),
		Seq:        s.seq.Next(),
		Value:      value,
		ObserverID: meta.ObserverID,
		ParentIDs:  parents,
		Kind:       kind,
		Flow:       flow,
	}
	s.insertLocked(ev)
	return ev
}

// insertLocked indexes ev at the end of history. Caller holds mu.
func (s *Store[T]) insertLocked(ev Event[T]) {
	pos := len(s.history)
	s.history = append(s.history, ev)
	s.index[ev.ID] = pos
	for _, parent := range ev.ParentIDs {
		s.children[parent] = append(s.children[parent], pos)
	}
	s.heads[ev.UniverseID] = pos
}

func (s *Store[T]) addBranchLocked(b Branch) {
	s.branchIx[b.ID] = len(s.branches)
	s.branches = append(s.branches, b)
}

// notify calls every active subscriber with ev. Must be called without mu held.
func (s *Store[T]) notify(ev Event[T]) {
	s.subMu.Lock()
	subs := make([]*subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(ev)
		}
	}
}
