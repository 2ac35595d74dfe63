package causal

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Resolver decides the value of a merge event from the current universe's
// value (ours) and the merged universe's value (theirs).
type Resolver[T any] func(ours, theirs T) (T, error)

// Ours keeps the current universe's value.
func Ours[T any]() Resolver[T] {
	return func(ours, _ T) (T, error) {
		return ours, nil
	}
}

// Theirs takes the merged universe's value.
func Theirs[T any]() Resolver[T] {
	return func(_, theirs T) (T, error) {
		return theirs, nil
	}
}

// ResolverFor returns the built-in resolver named "ours" or "theirs".
func ResolverFor[T any](name string) (Resolver[T], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ours":
		return Ours[T](), nil
	case "theirs":
		return Theirs[T](), nil
	}
	return nil, fmt.Errorf("unknown merge strategy %q (want ours or theirs)", name)
}

// Branch creates a new universe forked from the current one and returns its id.
//
// The new universe starts with one fork event carrying the source's current
// value, parented on the source's head (no parents if the source is empty).
// The current universe is not changed.
//
// Names are NFC-normalized and trimmed. A name already used as a universe id
// gets a numeric suffix ("x", "x-2", "x-3", ...).
func (s *Store[T]) Branch(name string) (string, error) {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return "", ErrInvalidBranchName
	}

	s.mu.Lock()
	source := s.current
	id := s.freeUniverseIDLocked(name)
	parents := s.headParentsLocked(source)
	value := s.valueLocked(source)

	ev := s.appendLocked(id, value, KindFork, Meta{}, parents)
	s.values[id] = value

	forkID := ""
	if len(parents) > 0 {
		forkID = parents[0]
	}
	s.addBranchLocked(Branch{
		ID:             id,
		Name:           name,
		ParentUniverse: source,
		ForkEventID:    forkID,
		CreatedAt:      ev.Timestamp,
	})
	s.mu.Unlock()

	s.notify(ev)
	return id, nil
}

func (s *Store[T]) freeUniverseIDLocked(name string) string {
	if _, taken := s.branchIx[name]; !taken {
		return name
	}
	for n := 2; ; n++ {
		candidate := name + "-" + strconv.Itoa(n)
		if _, taken := s.branchIx[candidate]; !taken {
			return candidate
		}
	}
}

// SwitchBranch makes universe the current one. No event is recorded.
func (s *Store[T]) SwitchBranch(universe string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branchIx[universe]; !ok {
		return fmt.Errorf("switch to %q: %w", universe, ErrUnknownUniverse)
	}
	s.current = universe
	return nil
}

// Merge joins universe into the current universe with one merge event whose
// parents are the current head and the merged universe's head. The event's
// value is chosen by resolve; nil means Ours.
//
// resolve runs without the store lock held, so it may read the store.
func (s *Store[T]) Merge(universe string, resolve Resolver[T]) (string, error) {
	if resolve == nil {
		resolve = Ours[T]()
	}

	s.mu.RLock()
	target := s.current
	_, known := s.branchIx[universe]
	ours := s.valueLocked(target)
	theirs := s.valueLocked(universe)
	s.mu.RUnlock()

	if !known {
		return "", fmt.Errorf("merge %q: %w", universe, ErrUnknownUniverse)
	}
	if universe == target {
		return "", fmt.Errorf("merge %q: %w", universe, ErrSelfMerge)
	}

	value, err := resolve(ours, theirs)
	if err != nil {
		return "", fmt.Errorf("merge %q into %q: %w", universe, target, err)
	}

	s.mu.Lock()
	parents := append(s.headParentsLocked(target), s.headParentsLocked(universe)...)
	ev := s.appendLocked(target, value, KindMerge, Meta{}, parents)
	s.values[target] = value
	s.mu.Unlock()

	s.notify(ev)
	return ev.ID, nil
}

// ListBranches returns every universe, main first, in creation order.
func (s *Store[T]) ListBranches() []Branch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Branch, len(s.branches))
	copy(out, s.branches)
	return out
}
