// Package causal implements the causal event store: an append-only, branchable,
// time-queryable log of state transitions for a single store key.
//
// # Model
//
// Every mutation appends one immutable Event. Events form an arena indexed by
// id; causal ancestry is expressed only through Event.ParentIDs:
//
//   - 0 parents: the first event of a store
//   - 1 parent: an ordinary transition, or a fork into a new universe
//   - 2 parents: a merge of another universe into the current one
//
// A universe is a named line of history. Every store starts in MainUniverse.
// Branch snapshots the current value into a fork event in a fresh universe;
// the two lines are independent until Merge.
//
// # Ordering
//
// History order is insertion order. Timestamps come from the store's Clock and
// need not be strictly increasing; Event.Seq is the per-store insertion sequence
// and breaks ties.
//
// # Concurrency
//
// A Store is safe for concurrent use. Mutations append under the store's mutex
// and notify subscribers after releasing it, so subscribers may write back
// into the same store (repairs) or other stores (reactions).
package causal
