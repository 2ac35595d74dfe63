// Package telemetry records the outcomes of law evaluations.
//
// Entries are created once by the auditor and never mutated. They are kept in
// a bounded in-process Buffer and forwarded to an optional Sink (logs,
// metrics, a Redis stream, the SQLite journal).
package telemetry

import "time"

// Type classifies an entry.
type Type string

const (
	TypeViolation     Type = "violation"
	TypeRepair        Type = "repair"
	TypeReaction      Type = "reaction"
	TypeReactionError Type = "reaction-error"
	TypeAuditError    Type = "audit-error"
)

// Types lists every entry type in a stable order.
var Types = []Type{TypeViolation, TypeRepair, TypeReaction, TypeReactionError, TypeAuditError}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeViolation, TypeRepair, TypeReaction, TypeReactionError, TypeAuditError:
		return true
	}
	return false
}

// Severity of an entry.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Entry is one structured evaluation outcome.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Type       Type           `json:"type"`
	LawName    string         `json:"lawName"`
	StoreKey   string         `json:"storeKey"`
	UniverseID string         `json:"universeId,omitempty"`
	ObserverID string         `json:"observerId,omitempty"`
	EventID    string         `json:"eventId,omitempty"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Detail returns the named detail value.
func (e Entry) Detail(key string) (any, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// Filter selects entries. Empty fields are unconstrained.
type Filter struct {
	Types    []Type
	LawName  string
	StoreKey string
}

// Match reports whether e satisfies every provided field of f.
func (f Filter) Match(e Entry) bool {
	if f.LawName != "" && e.LawName != f.LawName {
		return false
	}
	if f.StoreKey != "" && e.StoreKey != f.StoreKey {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

// Select returns the entries of entries matching f, in order.
func Select(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries of type t.
func Count(entries []Entry, t Type) int {
	n := 0
	for _, e := range entries {
		if e.Type == t {
			n++
		}
	}
	return n
}
