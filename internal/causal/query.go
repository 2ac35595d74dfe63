package causal

import "time"

// At returns the value carried by the latest event on the current universe's
// causal line whose timestamp is at or before t.
//
// The causal line is walked through first parents, so a branch sees the
// source's history up to its fork point. Returns (initial, false) when no such
// event exists.
func (s *Store[T]) At(t time.Time) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  *Event[T]
		found bool
	)
	s.walkLineLocked(s.current, func(ev *Event[T]) bool {
		if ev.Timestamp.After(t) {
			return true
		}
		// Timestamps along a line need not be increasing; keep the latest,
		// breaking ties by insertion sequence.
		if !found || ev.Timestamp.After(best.Timestamp) ||
			(ev.Timestamp.Equal(best.Timestamp) && ev.Seq > best.Seq) {
			best = ev
			found = true
		}
		return true
	})
	if !found {
		return s.initial, false
	}
	return best.Value, true
}

// AtEvent returns the value carried by the event with the given id.
func (s *Store[T]) AtEvent(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.history[pos].Value, true
}

// Event returns the event with the given id.
func (s *Store[T]) Event(id string) (Event[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return Event[T]{}, false
	}
	return s.history[pos], true
}

// Between returns the events of the current universe with t0 <= timestamp <= t1,
// in insertion order.
func (s *Store[T]) Between(t0, t1 time.Time) []Event[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event[T]
	for _, ev := range s.history {
		if ev.UniverseID != s.current {
			continue
		}
		if ev.Timestamp.Before(t0) || ev.Timestamp.After(t1) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Query returns the events matching every provided field of f, in insertion
// order. The zero Filter matches the whole history.
func (s *Store[T]) Query(f Filter) []Event[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event[T]
	for _, ev := range s.history {
		if f.match(ev.UniverseID, ev.ObserverID, ev.Kind) {
			out = append(out, ev)
		}
	}
	return out
}

// CausedBy returns every event that has id as an ancestor: the transitive
// closure over parent edges followed forward. The result is in insertion order
// and excludes the event itself. Unknown ids yield nil.
func (s *Store[T]) CausedBy(id string) []Event[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.index[id]; !ok {
		return nil
	}

	seen := make(map[int]bool)
	queue := []string{id}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, pos := range s.children[next] {
			if seen[pos] {
				continue
			}
			seen[pos] = true
			queue = append(queue, s.history[pos].ID)
		}
	}

	// Children are always inserted after their parents, so a scan in history
	// order yields insertion order.
	out := make([]Event[T], 0, len(seen))
	for pos := range s.history {
		if seen[pos] {
			out = append(out, s.history[pos])
		}
	}
	return out
}

// walkLineLocked visits the head of universe and its first-parent ancestors,
// newest first, until fn returns false.
func (s *Store[T]) walkLineLocked(universe string, fn func(*Event[T]) bool) {
	pos, ok := s.heads[universe]
	for ok {
		ev := &s.history[pos]
		if !fn(ev) || len(ev.ParentIDs) == 0 {
			return
		}
		pos, ok = s.index[ev.ParentIDs[0]]
	}
}
