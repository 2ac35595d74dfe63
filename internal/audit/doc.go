// Package audit implements the constraint auditor: it watches every store
// that has bound laws, runs the law engine when a store changes, writes
// successful repairs back, applies reactions to other stores, and records
// every outcome as a telemetry entry.
//
// # Lifecycle
//
// An Auditor is Idle until Start and Idle again after Stop. Start subscribes to
// each store with at least one bound law and runs a catch-up evaluation of its
// current state. A law bound to a key with no registered store produces one
// audit-error entry per Start and is never evaluated.
//
// # Serialization
//
// Evaluations of one store never overlap. Each tracked store has a drain loop:
// the first notification starts it, notifications that arrive while it runs
// (re-entrant writes from repairs and reactions, or writes from other
// goroutines) only leave work behind, and the loop re-checks the store head
// before it exits. A notification whose head event id was already evaluated is
// skipped; Scan bypasses that check.
//
// # Propagation
//
// Every event carries a flow token. Repairs and reactions inherit the flow of
// the event that caused them. Within one flow the auditor:
//   - skips a reaction that would write the same value through the same
//     law and target a second time (cycle guard, no telemetry)
//   - stops writing after MaxSteps repairs and reactions (quota)
//
// Flow state is released when no drain loop holds the flow any more.
//
// # Failure isolation
//
// Nothing escapes Start, Stop or Scan. Panics and type errors in one law become
// audit-error entries; failed reactions become reaction-error entries; sibling
// laws and reactions continue.
package audit
