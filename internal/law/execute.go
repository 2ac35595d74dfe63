package law

import (
	"context"
	"errors"
	"fmt"
)

// Input is everything Execute needs for one run.
type Input[T any] struct {
	State          T
	StoreKey       string
	EventID        string
	AttemptRepair  bool
	ApplyReactions bool
	// Context is required when ApplyReactions is set and the law has reactions.
	Context Context
}

// Outcome is the result of one Execute.
type Outcome[T any] struct {
	Evaluation Evaluation
	// Valid is the final verdict: the repaired evaluation when a repair was
	// attempted and produced a value, the original evaluation otherwise.
	Valid              bool
	RepairAttempted    bool
	RepairedValue      T
	RepairedEvaluation *Evaluation
	RepairErr          error
	Effects            []Write
	ReactionErrors     []ReactionError
}

// Repaired reports whether a repair produced a value that evaluates valid.
func (o Outcome[T]) Repaired() bool {
	return o.RepairedEvaluation != nil && o.RepairedEvaluation.Valid
}

// ErrNoContext is reported per reaction when reactions are applied without a
// Context.
var ErrNoContext = errors.New("no law context")

// Execute runs l against in.State.
//
//  1. Evaluate the state.
//  2. If invalid, AttemptRepair is set and the law has a Repair, compute the
//     repaired value and evaluate it. A failed repair still reports
//     Valid=false with the attempt recorded.
//  3. If ApplyReactions is set and the original or repaired state is valid,
//     run every reaction against that state and write its output with
//     Context.SetState. Reactions are isolated from each other: errors and
//     panics are collected in ReactionErrors.
//
// Panics from Evaluate or Repair are not recovered.
func Execute[T any](ctx context.Context, l Law[T], in Input[T]) Outcome[T] {
	out := Outcome[T]{
		Evaluation: l.Evaluate(in.State),
	}
	out.Valid = out.Evaluation.Valid

	effective := in.State
	if !out.Evaluation.Valid && in.AttemptRepair && l.Repair != nil {
		out.RepairAttempted = true
		repaired, err := l.Repair(ctx, in.State)
		if err != nil {
			out.RepairErr = err
		} else {
			eval := l.Evaluate(repaired)
			out.RepairedValue = repaired
			out.RepairedEvaluation = &eval
			out.Valid = eval.Valid
			if eval.Valid {
				effective = repaired
			}
		}
	}

	if !in.ApplyReactions || len(l.Reactions) == 0 || !out.Valid {
		return out
	}

	for _, r := range l.Reactions {
		w, err := react(ctx, r, effective, in.Context)
		if err != nil {
			out.ReactionErrors = append(out.ReactionErrors, ReactionError{Target: r.Target, Err: err})
			continue
		}
		out.Effects = append(out.Effects, w)
	}
	return out
}

func react[T any](ctx context.Context, r Reaction[T], state T, lc Context) (w Write, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if lc == nil {
		return Write{}, ErrNoContext
	}
	if r.Compute == nil {
		return Write{}, errors.New("reaction has no compute function")
	}
	if err := ctx.Err(); err != nil {
		return Write{}, err
	}

	next, err := r.Compute(ctx, state, lc)
	if err != nil {
		return Write{}, fmt.Errorf("compute: %w", err)
	}
	return lc.SetState(r.Target, next)
}
