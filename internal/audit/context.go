package audit

import (
	"errors"
	"fmt"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
)

// lawContext is the law.Context handed to one law run. Writes are attributed
// to the law and continue the triggering event's flow.
type lawContext struct {
	a    *Auditor
	flow string
	law  string
}

func (c *lawContext) GetState(key string) (any, bool) {
	store, ok := c.a.stores[key]
	if !ok {
		return nil, false
	}
	return store.Value(), true
}

// SetState writes value into the store with the given key.
//
// Returns a cycle error (without writing) if this law already wrote the same
// value into key in this flow, and a quota error once the flow is exhausted.
func (c *lawContext) SetState(key string, value any) (law.Write, error) {
	store, ok := c.a.stores[key]
	if !ok {
		return law.Write{}, NewUnknownStoreError(key, c.law)
	}

	hash, hashErr := ValueHash(value)
	if hashErr == nil && c.a.flows.cycles.WouldCycle(c.flow, c.law, key, hash) {
		return law.Write{}, NewCycleError(c.flow, c.law, key)
	}

	if err := c.a.flows.step(c.flow); err != nil {
		var se *StepsExceededError
		errors.As(err, &se)
		c.a.logger.Error("max steps quota exceeded",
			"law", c.law,
			"target", key,
			"flow", c.flow,
			"steps", se.Steps,
		)
		return law.Write{}, NewQuotaError(c.flow, c.law, se)
	}

	if hashErr == nil {
		c.a.flows.cycles.Record(c.flow, c.law, key, hash)
	}

	id, err := store.Write(value, causal.Meta{
		ObserverID: law.ObserverID(c.law),
		Kind:       causal.KindReaction,
		Flow:       c.flow,
	})
	if err != nil {
		if causal.IsTypeError(err) {
			return law.Write{}, &RuntimeError{
				Code:    ErrCodeTypeMismatch,
				Message: err.Error(),
				Flow:    c.flow,
				LawName: c.law,
				Target:  key,
			}
		}
		return law.Write{}, fmt.Errorf("write %s: %w", key, err)
	}
	return law.Write{StoreKey: key, EventID: id, Value: value}, nil
}
