// Package journal persists causal stores and audit telemetry in SQLite.
//
// A journal holds any number of stores keyed by store key. SaveSnapshot is
// idempotent: events already present (same store key and id) are left as
// they are, so saving a store again after more writes appends only the new
// events. LoadSnapshot returns events in (seq, id) order, which is the order
// Store.Restore expects.
//
// The journal also implements telemetry.Sink, so an auditor can write its
// entries straight into the telemetry table.
package journal
