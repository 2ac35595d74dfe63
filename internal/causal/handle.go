package causal

import (
	"fmt"
	"reflect"
)

// Handle is a type-erased view of a Store, so stores of different value types
// can share one map (the auditor's store set, the CLI, the journal).
type Handle interface {
	Key() string
	CurrentUniverse() string
	// Value returns the current value of the current universe.
	Value() any
	Latest() (Event[any], bool)
	LastEventID() (string, bool)
	// Write is SetWithMeta with a checked conversion to the store's type.
	// Returns a *TypeError when v does not have the store's value type.
	Write(v any, meta Meta) (string, error)
	// Watch is Subscribe with type-erased events.
	Watch(fn func(Event[any])) (unsubscribe func())
	Len() int
	ExportHistory() ([]byte, error)
	ImportHistory(data []byte) error
}

// Untyped returns s as a Handle.
func Untyped[T any](s *Store[T]) Handle {
	return handle[T]{s: s}
}

type handle[T any] struct {
	s *Store[T]
}

func (h handle[T]) Key() string { return h.s.Key() }
func (h handle[T]) CurrentUniverse() string { return h.s.CurrentUniverse() }
func (h handle[T]) Value() any { return h.s.Get() }
func (h handle[T]) LastEventID() (string, bool) { return h.s.LastEventID() }
func (h handle[T]) Len() int { return h.s.Len() }
func (h handle[T]) ExportHistory() ([]byte, error) { return h.s.ExportHistory() }
func (h handle[T]) ImportHistory(data []byte) error { return h.s.ImportHistory(data) }

func (h handle[T]) Latest() (Event[any], bool) {
	ev, ok := h.s.Latest()
	if !ok {
		return Event[any]{}, false
	}
	return erase(ev), true
}

func (h handle[T]) Write(v any, meta Meta) (string, error) {
	tv, err := convert[T](h.s.Key(), v)
	if err != nil {
		return "", err
	}
	return h.s.SetWithMeta(tv, meta), nil
}

func (h handle[T]) Watch(fn func(Event[any])) func() {
	return h.s.Subscribe(func(ev Event[T]) {
		fn(erase(ev))
	})
}

func erase[T any](ev Event[T]) Event[any] {
	return Event[any]{
		ID:         ev.ID,
		StoreKey:   ev.StoreKey,
		UniverseID: ev.UniverseID,
		Timestamp:  ev.Timestamp,
		Seq:        ev.Seq,
		Value:      ev.Value,
		ObserverID: ev.ObserverID,
		ParentIDs:  ev.ParentIDs,
		Kind:       ev.Kind,
		Flow:       ev.Flow,
	}
}

func convert[T any](key string, v any) (T, error) {
	if tv, ok := v.(T); ok {
		return tv, nil
	}

	var zero T
	want := reflect.TypeFor[T]()
	if v == nil && nilable(want.Kind()) {
		return zero, nil
	}
	return zero, &TypeError{
		StoreKey: key,
		Want:     want.String(),
		Got:      fmt.Sprintf("%T", v),
	}
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
