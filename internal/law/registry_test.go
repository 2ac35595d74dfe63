package law

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAndToMap(t *testing.T) {
	r := NewRegistry()
	Add(r, "balance", nonNegative())
	Add(r, "balance", Law[int]{Name: "small", Evaluate: func(x int) Evaluation { return Check(x < 1000, "too big") }})
	Add(r, "name", Law[string]{Name: "non-empty", Evaluate: func(s string) Evaluation { return Check(s != "", "empty") }})

	assert.Equal(t, []string{"balance", "name"}, r.Keys())
	assert.Equal(t, 3, r.Len())

	rules := r.For("balance")
	require.Len(t, rules, 2)
	assert.Equal(t, "non-negative", rules[0].Name())
	assert.Equal(t, "small", rules[1].Name())

	m := r.ToMap()
	assert.Len(t, m, 2)

	// Mutating the copy leaves the registry alone
	m["balance"] = nil
	assert.Len(t, r.For("balance"), 2)
}

func TestMap_IsSource(t *testing.T) {
	var src Source = Map{"a": {Erase(nonNegative())}}

	m := src.ToMap()
	require.Len(t, m["a"], 1)
	assert.Equal(t, "non-negative", m["a"][0].Name())
}

func TestRule_Run(t *testing.T) {
	rule := Erase(nonNegative())

	out, err := rule.Run(context.Background(), Input[any]{State: -3, AttemptRepair: true})
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, 0, out.RepairedValue)
}

func TestRule_RunWrongType(t *testing.T) {
	rule := Erase(nonNegative())

	_, err := rule.Run(context.Background(), Input[any]{State: "three"})
	require.Error(t, err)

	var typeErr *StateTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "non-negative", typeErr.Law)
	assert.Equal(t, "int", typeErr.Want)
	assert.Equal(t, "string", typeErr.Got)
}

func TestRule_RunNilForNilableType(t *testing.T) {
	rule := Erase(Law[[]int]{
		Name:     "non-empty",
		Evaluate: func(xs []int) Evaluation { return Check(len(xs) > 0, "empty") },
	})

	out, err := rule.Run(context.Background(), Input[any]{State: nil})
	require.NoError(t, err)
	assert.False(t, out.Valid)
}

func TestRule_Targets(t *testing.T) {
	l := nonNegative()
	l.Reactions = []Reaction[int]{mirror("b"), mirror("c")}

	assert.Equal(t, []string{"b", "c"}, Erase(l).Targets())
	assert.Empty(t, Erase(nonNegative()).Targets())
}
