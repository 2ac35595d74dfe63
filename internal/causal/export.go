package causal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the current export format version.
const SnapshotVersion = 1

// Snapshot is the serialized form of a store: the full event log plus the
// branch map and the current universe.
type Snapshot[T any] struct {
	Version         int        `json:"version"`
	StoreKey        string     `json:"storeKey"`
	CurrentUniverse string     `json:"currentUniverse"`
	Initial         T          `json:"initial"`
	Branches        []Branch   `json:"branches"`
	Events          []Event[T] `json:"events"`
}

// Snapshot returns a copy of the store's complete state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot[T]{
		Version:         SnapshotVersion,
		StoreKey:        s.key,
		CurrentUniverse: s.current,
		Initial:         s.initial,
		Branches:        make([]Branch, len(s.branches)),
		Events:          make([]Event[T], len(s.history)),
	}
	copy(snap.Branches, s.branches)
	copy(snap.Events, s.history)
	return snap
}

// ExportHistory serializes the store as indented JSON.
func (s *Store[T]) ExportHistory() ([]byte, error) {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", s.key, err)
	}
	return data, nil
}

// ImportHistory replaces the store's state with an exported history.
//
// Accepts the ExportHistory envelope or a bare JSON array of events. For a
// bare array the branch map is derived from fork events and the current
// universe is main. Subscribers are not notified. On error the store is left
// unchanged.
func (s *Store[T]) ImportHistory(data []byte) error {
	snap, err := decodeSnapshot[T](data)
	if err != nil {
		return err
	}
	if !snap.hasInitial {
		snap.Initial = s.Initial()
	}
	return s.Restore(snap.Snapshot)
}

type decodedSnapshot[T any] struct {
	Snapshot[T]
	hasInitial bool
}

type wireSnapshot struct {
	Version         int             `json:"version"`
	StoreKey        string          `json:"storeKey"`
	CurrentUniverse string          `json:"currentUniverse"`
	Initial         json.RawMessage `json:"initial"`
	Branches        []Branch        `json:"branches"`
	Events          json.RawMessage `json:"events"`
}

// DecodeSnapshot parses either export shape. Numbers decoded into untyped
// values become int64 when integral and float64 otherwise.
func DecodeSnapshot[T any](data []byte) (Snapshot[T], error) {
	snap, err := decodeSnapshot[T](data)
	return snap.Snapshot, err
}

func decodeSnapshot[T any](data []byte) (decodedSnapshot[T], error) {
	var out decodedSnapshot[T]

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return out, corrupt("empty input")
	}

	if trimmed[0] == '[' {
		var events []Event[T]
		if err := decodeJSON(trimmed, &events); err != nil {
			return out, corrupt("decode events: %v", err)
		}
		out.Snapshot = SnapshotFromEvents[T]("", *new(T), events)
		return out, nil
	}

	var wire wireSnapshot
	if err := decodeJSON(trimmed, &wire); err != nil {
		return out, corrupt("decode snapshot: %v", err)
	}
	if wire.Version != SnapshotVersion {
		return out, corrupt("unsupported version %d", wire.Version)
	}

	out.Version = wire.Version
	out.StoreKey = wire.StoreKey
	out.CurrentUniverse = wire.CurrentUniverse
	out.Branches = wire.Branches

	if len(wire.Initial) > 0 && !bytes.Equal(wire.Initial, []byte("null")) {
		if err := decodeJSON(wire.Initial, &out.Initial); err != nil {
			return out, corrupt("decode initial: %v", err)
		}
		normalizeTyped(&out.Initial)
		out.hasInitial = true
	}
	if len(wire.Events) > 0 {
		if err := decodeJSON(wire.Events, &out.Events); err != nil {
			return out, corrupt("decode events: %v", err)
		}
	}
	for i := range out.Events {
		normalizeTyped(&out.Events[i].Value)
	}
	return out, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// SnapshotFromEvents builds a snapshot whose branch map is derived from the
// events: main, plus one branch per fork event, plus any other universe that
// appears in the log.
func SnapshotFromEvents[T any](key string, initial T, events []Event[T]) Snapshot[T] {
	snap := Snapshot[T]{
		Version:         SnapshotVersion,
		StoreKey:        key,
		CurrentUniverse: MainUniverse,
		Initial:         initial,
		Events:          events,
	}

	universeOf := make(map[string]string, len(events))
	known := map[string]bool{MainUniverse: true}
	snap.Branches = append(snap.Branches, Branch{ID: MainUniverse, Name: MainUniverse})
	if len(events) > 0 {
		snap.Branches[0].CreatedAt = events[0].Timestamp
	}

	for i := range events {
		ev := &events[i]
		normalizeTyped(&ev.Value)
		universeOf[ev.ID] = ev.UniverseID
		if known[ev.UniverseID] {
			continue
		}
		known[ev.UniverseID] = true

		b := Branch{ID: ev.UniverseID, Name: ev.UniverseID, CreatedAt: ev.Timestamp}
		if ev.Kind == KindFork && len(ev.ParentIDs) > 0 {
			b.ForkEventID = ev.ParentIDs[0]
			b.ParentUniverse = universeOf[b.ForkEventID]
		}
		snap.Branches = append(snap.Branches, b)
	}
	return snap
}

// Restore replaces the store's state with snap after validating it as a causal
// log: unique ids, parents recorded before their children, known kinds and
// universes, increasing sequence numbers. Subscribers are not notified.
func (s *Store[T]) Restore(snap Snapshot[T]) error {
	if snap.StoreKey != "" && snap.StoreKey != s.key {
		return fmt.Errorf("import into %s: snapshot is for %s: %w", s.key, snap.StoreKey, ErrStoreKeyMismatch)
	}

	staged := &Store[T]{key: s.key, initial: snap.Initial}
	staged.resetLocked()

	if err := staged.restoreBranches(snap.Branches); err != nil {
		return err
	}

	renumber := true
	for _, ev := range snap.Events {
		if ev.Seq != 0 {
			renumber = false
			break
		}
	}

	var lastSeq int64
	for i, ev := range snap.Events {
		if ev.StoreKey == "" {
			ev.StoreKey = s.key
		}
		if ev.StoreKey != s.key {
			return fmt.Errorf("event %s belongs to %s: %w", ev.ID, ev.StoreKey, ErrStoreKeyMismatch)
		}
		if ev.ID == "" {
			return corrupt("event %d has no id", i)
		}
		if _, dup := staged.index[ev.ID]; dup {
			return corrupt("duplicate event id %s", ev.ID)
		}
		if !ev.Kind.Valid() {
			return corrupt("event %s has unknown kind %q", ev.ID, ev.Kind)
		}
		if _, ok := staged.branchIx[ev.UniverseID]; !ok {
			return corrupt("event %s is in unknown universe %q", ev.ID, ev.UniverseID)
		}
		for _, parent := range ev.ParentIDs {
			if _, ok := staged.index[parent]; !ok {
				return corrupt("event %s references parent %s before it is recorded", ev.ID, parent)
			}
		}

		if renumber {
			ev.Seq = int64(i + 1)
		} else if ev.Seq <= lastSeq {
			return corrupt("event %s has seq %d after %d", ev.ID, ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq

		if ev.ParentIDs == nil {
			ev.ParentIDs = []string{}
		}
		if ev.Flow == "" {
			ev.Flow = ev.ID
		}
		ev.Timestamp = stamp(ev.Timestamp)

		staged.insertLocked(ev)
		staged.values[ev.UniverseID] = ev.Value
	}
	staged.seq = NewSequenceAt(lastSeq)

	current := snap.CurrentUniverse
	if current == "" {
		current = MainUniverse
	}
	if _, ok := staged.branchIx[current]; !ok {
		return corrupt("current universe %q is not a branch", current)
	}

	s.mu.Lock()
	s.initial = staged.initial
	s.seq = staged.seq
	s.current = current
	s.history = staged.history
	s.index = staged.index
	s.children = staged.children
	s.heads = staged.heads
	s.values = staged.values
	s.branches = staged.branches
	s.branchIx = staged.branchIx
	s.mu.Unlock()
	return nil
}

func (s *Store[T]) restoreBranches(branches []Branch) error {
	hasMain := false
	for _, b := range branches {
		if b.ID == MainUniverse {
			hasMain = true
			break
		}
	}
	if !hasMain {
		s.addBranchLocked(Branch{ID: MainUniverse, Name: MainUniverse})
	}

	for _, b := range branches {
		if b.ID == "" {
			return corrupt("branch with empty id")
		}
		if _, dup := s.branchIx[b.ID]; dup {
			return corrupt("duplicate branch %s", b.ID)
		}
		if b.Name == "" {
			b.Name = b.ID
		}
		b.CreatedAt = stamp(b.CreatedAt)
		s.addBranchLocked(b)
	}
	return nil
}

// normalizeTyped converts json.Number leaves in untyped values.
func normalizeTyped[T any](v *T) {
	switch p := any(v).(type) {
	case *any:
		*p = NormalizeJSON(*p)
	case *map[string]any:
		for k, e := range *p {
			(*p)[k] = NormalizeJSON(e)
		}
	case *[]any:
		for i, e := range *p {
			(*p)[i] = NormalizeJSON(e)
		}
	}
}

// NormalizeJSON returns v with every json.Number replaced by an int64 when it
// is integral and a float64 otherwise, descending into maps and slices.
func NormalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = NormalizeJSON(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = NormalizeJSON(e)
		}
		return x
	}
	return v
}
