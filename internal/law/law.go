// Package law defines named invariants over store values and the execution
// engine that evaluates them.
//
// A Law is bound to exactly one store key. Execute runs one law against one
// state snapshot: it evaluates, optionally repairs, and optionally fires
// reactions into other stores through an injected Context. Execute never
// writes to the law's own store; applying a repair is the caller's job.
package law

import (
	"context"
	"fmt"
	"strings"
)

// Evaluation is the verdict of Law.Evaluate.
type Evaluation struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// Pass returns a valid evaluation.
func Pass() Evaluation {
	return Evaluation{Valid: true}
}

// Fail returns an invalid evaluation with the given violation messages.
func Fail(violations ...string) Evaluation {
	return Evaluation{Valid: false, Violations: violations}
}

// Check returns Pass when ok and Fail(message) otherwise.
func Check(ok bool, message string) Evaluation {
	if ok {
		return Pass()
	}
	return Fail(message)
}

// String summarizes the evaluation for logs and telemetry messages.
func (e Evaluation) String() string {
	if e.Valid {
		return "valid"
	}
	if len(e.Violations) == 0 {
		return "invalid"
	}
	return strings.Join(e.Violations, "; ")
}

// Law is a named invariant over values of type T.
type Law[T any] struct {
	Name string
	// Evaluate reports whether state satisfies the invariant. Required.
	Evaluate func(state T) Evaluation
	// Repair proposes a replacement for an invalid state. Optional.
	Repair func(ctx context.Context, state T) (T, error)
	// Reactions fire after a valid (or successfully repaired) evaluation.
	Reactions []Reaction[T]
}

// Reaction writes a value derived from the law's state into another store.
type Reaction[T any] struct {
	Target string
	// Compute returns the target's next value. It may read other stores
	// through lc; the engine performs the write.
	Compute func(ctx context.Context, state T, lc Context) (any, error)
}

// Context is the engine's window onto the full store map.
type Context interface {
	// GetState returns the current value of the store with the given key.
	GetState(key string) (any, bool)
	// SetState writes value to the store with the given key.
	SetState(key string, value any) (Write, error)
}

// Write describes one completed store write.
type Write struct {
	StoreKey string `json:"storeKey"`
	EventID  string `json:"eventId"`
	Value    any    `json:"value"`
}

// ReactionError records one failed reaction.
type ReactionError struct {
	Target string
	Err    error
}

func (e ReactionError) Error() string {
	return fmt.Sprintf("reaction into %s: %v", e.Target, e.Err)
}

func (e ReactionError) Unwrap() error {
	return e.Err
}

// ObserverID is the observer recorded on writes made on behalf of a law.
func ObserverID(name string) string {
	return "law:" + name
}
