package causal

import (
	"slices"
	"time"
)

// MainUniverse is the universe every store starts in.
const MainUniverse = "main"

// EventKind identifies which store operation produced an event.
type EventKind string

const (
	// KindSet is an ordinary write from a producer.
	KindSet EventKind = "set"
	// KindRepair is a write-back of a law's repaired value.
	KindRepair EventKind = "repair"
	// KindReaction is a write performed by a law reaction on another store.
	KindReaction EventKind = "reaction"
	// KindFork is the first event of a universe created by Branch.
	KindFork EventKind = "fork"
	// KindMerge joins another universe into the current one.
	KindMerge EventKind = "merge"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindSet, KindRepair, KindReaction, KindFork, KindMerge:
		return true
	}
	return false
}

// writable reports whether k may be requested through SetWithMeta.
func (k EventKind) writable() bool {
	return k == KindSet || k == KindRepair || k == KindReaction
}

// Event is one immutable state transition.
//
// Flow is the propagation token: a producer write starts a new flow equal to
// its own id, and writes performed on its behalf (repairs, reactions) inherit
// it. It is used to bound re-entrant propagation.
type Event[T any] struct {
	ID         string    `json:"id"`
	StoreKey   string    `json:"storeKey"`
	UniverseID string    `json:"universeId"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        int64     `json:"seq"`
	Value      T         `json:"value"`
	ObserverID string    `json:"observerId,omitempty"`
	ParentIDs  []string  `json:"parentIds"`
	Kind       EventKind `json:"kind"`
	Flow       string    `json:"flow,omitempty"`
}

// IsRoot reports whether the event has no causal parents.
func (e Event[T]) IsRoot() bool {
	return len(e.ParentIDs) == 0
}

// HasParent reports whether id is a direct parent of e.
func (e Event[T]) HasParent(id string) bool {
	return slices.Contains(e.ParentIDs, id)
}

// Meta carries optional attribution for a write.
type Meta struct {
	// ObserverID names the writer (a user, a law, a bridge).
	ObserverID string
	// Kind defaults to KindSet. Only set, repair and reaction are accepted;
	// anything else is recorded as set.
	Kind EventKind
	// Flow continues an existing propagation. Empty starts a new one.
	Flow string
}

// Filter selects events in Query. Empty fields are unconstrained; provided
// fields are combined with logical AND.
type Filter struct {
	ObserverIDs []string
	Kinds       []EventKind
	UniverseID  string
}

func (f Filter) match(universe, observer string, kind EventKind) bool {
	if f.UniverseID != "" && f.UniverseID != universe {
		return false
	}
	if len(f.ObserverIDs) > 0 && !slices.Contains(f.ObserverIDs, observer) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, kind) {
		return false
	}
	return true
}

// Branch describes one universe of a store.
type Branch struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ParentUniverse string    `json:"parentUniverse"`
	ForkEventID    string    `json:"forkEventId"`
	CreatedAt      time.Time `json:"createdAt"`
}
