package law

import (
	"maps"
	"slices"
	"sync"
)

// Source supplies laws grouped by the store key they are bound to.
// Implemented by Map, *Registry and compiled rule-sets.
type Source interface {
	ToMap() map[string][]Rule
}

// Map is a Source backed by a plain map.
type Map map[string][]Rule

// ToMap returns a copy of m.
func (m Map) ToMap() map[string][]Rule {
	out := make(map[string][]Rule, len(m))
	for k, rules := range m {
		out[k] = slices.Clone(rules)
	}
	return out
}

// Registry collects laws by store key. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	laws map[string][]Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{laws: make(map[string][]Rule)}
}

// Add binds rule to key. Rules for one key run in the order they were added.
func (r *Registry) Add(key string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.laws[key] = append(r.laws[key], rule)
}

// Add binds a typed law to key.
func Add[T any](r *Registry, key string, l Law[T]) {
	r.Add(key, Erase(l))
}

// For returns the rules bound to key.
func (r *Registry) For(key string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.laws[key])
}

// Keys returns the bound store keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.laws))
}

// Len returns the total number of rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rules := range r.laws {
		n += len(rules)
	}
	return n
}

// ToMap returns a copy of the registry contents.
func (r *Registry) ToMap() map[string][]Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Map(r.laws).ToMap()
}
