package law

import (
	"context"
	"fmt"
	"reflect"
)

// Rule is a Law with its value type erased, so laws over different store
// types can share one registry.
type Rule interface {
	Name() string
	// Targets lists the store keys the rule's reactions write to.
	Targets() []string
	// Run converts state to the law's type and calls Execute. Returns a
	// *StateTypeError when the state has the wrong type.
	Run(ctx context.Context, in Input[any]) (Outcome[any], error)
}

// StateTypeError reports a state whose type does not match the law's.
type StateTypeError struct {
	Law  string
	Want string
	Got  string
}

func (e *StateTypeError) Error() string {
	return fmt.Sprintf("law %s expects %s, got %s", e.Law, e.Want, e.Got)
}

// Erase returns l as a Rule.
func Erase[T any](l Law[T]) Rule {
	return erased[T]{l: l}
}

type erased[T any] struct {
	l Law[T]
}

func (e erased[T]) Name() string {
	return e.l.Name
}

func (e erased[T]) Targets() []string {
	targets := make([]string, 0, len(e.l.Reactions))
	for _, r := range e.l.Reactions {
		targets = append(targets, r.Target)
	}
	return targets
}

func (e erased[T]) Run(ctx context.Context, in Input[any]) (Outcome[any], error) {
	state, ok := in.State.(T)
	if !ok {
		want := reflect.TypeFor[T]()
		if in.State != nil || !nilable(want.Kind()) {
			return Outcome[any]{}, &StateTypeError{
				Law:  e.l.Name,
				Want: want.String(),
				Got:  fmt.Sprintf("%T", in.State),
			}
		}
	}

	out := Execute(ctx, e.l, Input[T]{
		State:          state,
		StoreKey:       in.StoreKey,
		EventID:        in.EventID,
		AttemptRepair:  in.AttemptRepair,
		ApplyReactions: in.ApplyReactions,
		Context:        in.Context,
	})

	erasedOut := Outcome[any]{
		Evaluation:         out.Evaluation,
		Valid:              out.Valid,
		RepairAttempted:    out.RepairAttempted,
		RepairedEvaluation: out.RepairedEvaluation,
		RepairErr:          out.RepairErr,
		Effects:            out.Effects,
		ReactionErrors:     out.ReactionErrors,
	}
	if out.RepairedEvaluation != nil {
		erasedOut.RepairedValue = out.RepairedValue
	}
	return erasedOut, nil
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
