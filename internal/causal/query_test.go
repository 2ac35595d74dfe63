package causal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causal/internal/testutil"
)

// at returns the timestamp n seconds after the epoch. With the default manual
// clock the main branch is stamped at(0) and the k-th event at(k).
func at(n float64) time.Time {
	return testutil.Epoch.Add(time.Duration(n * float64(time.Second)))
}

// ============================================================
// At / AtEvent
// ============================================================

func TestStore_At(t *testing.T) {
	s := newTestStore("counter", -1)
	s.Set(1) // at(1)
	s.Set(2) // at(2)
	s.Set(3) // at(3)

	tests := []struct {
		name   string
		query  time.Time
		want   int
		wantOK bool
	}{
		{"before first event", at(0.5), -1, false},
		{"exactly first event", at(1), 1, true},
		{"between events", at(2.5), 2, true},
		{"exactly last event", at(3), 3, true},
		{"after last event", at(100), 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.At(tt.query)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_At_FollowsBranchLineThroughFork(t *testing.T) {
	s := newTestStore("counter", 0)
	s.Set(1) // at(1)
	s.Set(2) // at(2)

	exp, err := s.Branch("exp") // fork at(3)
	require.NoError(t, err)
	require.NoError(t, s.SwitchBranch(exp))
	s.Set(10) // at(4)

	v, ok := s.At(at(1.5))
	require.True(t, ok)
	assert.Equal(t, 1, v, "history before the fork is inherited from main")

	v, _ = s.At(at(3))
	assert.Equal(t, 2, v, "fork event carries the source value")

	v, _ = s.At(at(4))
	assert.Equal(t, 10, v)

	require.NoError(t, s.SwitchBranch(MainUniverse))
	v, _ = s.At(at(4))
	assert.Equal(t, 2, v, "main never sees the branch's writes")
}

func TestStore_At_TiesBrokenByInsertion(t *testing.T) {
	s := NewStore("counter", 0,
		WithClock(testutil.NewManualClockAt(testutil.Epoch, 0)),
		WithIDs(testutil.NewSequenceGenerator("e")),
	)
	s.Set(1)
	s.Set(2)
	s.Set(3)

	v, ok := s.At(testutil.Epoch)
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestStore_AtEvent(t *testing.T) {
	s := newTestStore("counter", 0)
	first := s.Set(1)
	s.Set(2)

	v, ok := s.AtEvent(first)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.AtEvent("nope")
	assert.False(t, ok)
}

// ============================================================
// Between / Query
// ============================================================

func TestStore_Between(t *testing.T) {
	s := newTestStore("counter", 0)
	s.Set(1) // at(1)
	s.Set(2) // at(2)
	s.Set(3) // at(3)
	s.Set(4) // at(4)

	events := s.Between(at(2), at(3))
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[0].Value)
	assert.Equal(t, 3, events[1].Value)

	assert.Empty(t, s.Between(at(10), at(20)))
}

func TestStore_Between_OnlyCurrentUniverse(t *testing.T) {
	s := newTestStore("counter", 0)
	s.Set(1) // at(1)
	exp, err := s.Branch("exp") // at(2)
	require.NoError(t, err)
	s.Set(2) // at(3), main

	events := s.Between(at(0), at(10))
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, MainUniverse, ev.UniverseID)
	}

	require.NoError(t, s.SwitchBranch(exp))
	events = s.Between(at(0), at(10))
	require.Len(t, events, 1)
	assert.Equal(t, KindFork, events[0].Kind)
}

func TestStore_Query(t *testing.T) {
	s := newTestStore("counter", 0)
	s.SetWithMeta(1, Meta{ObserverID: "alice"})
	s.SetWithMeta(2, Meta{ObserverID: "bob"})
	s.SetWithMeta(0, Meta{ObserverID: "law:positive", Kind: KindRepair})
	exp, err := s.Branch("exp")
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"zero filter matches everything", Filter{}, []int{1, 2, 0, 0}},
		{"by observer", Filter{ObserverIDs: []string{"alice", "bob"}}, []int{1, 2}},
		{"by kind", Filter{Kinds: []EventKind{KindRepair}}, []int{0}},
		{"by universe", Filter{UniverseID: exp}, []int{0}},
		{"conjunction", Filter{ObserverIDs: []string{"alice"}, Kinds: []EventKind{KindRepair}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, ev := range s.Query(tt.filter) {
				got = append(got, ev.Value)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================
// CausedBy
// ============================================================

func TestStore_CausedBy(t *testing.T) {
	s := newTestStore("counter", 0)
	a := s.Set(1)
	b := s.Set(2)
	exp, err := s.Branch("exp")
	require.NoError(t, err)
	fork := s.Query(Filter{Kinds: []EventKind{KindFork}})[0].ID

	require.NoError(t, s.SwitchBranch(exp))
	c := s.Set(20)

	require.NoError(t, s.SwitchBranch(MainUniverse))
	d := s.Set(3)
	m, err := s.Merge(exp, Theirs[int]())
	require.NoError(t, err)

	ids := func(events []Event[int]) []string {
		var out []string
		for _, ev := range events {
			out = append(out, ev.ID)
		}
		return out
	}

	assert.Equal(t, []string{b, fork, c, d, m}, ids(s.CausedBy(a)))
	assert.Equal(t, []string{c, m}, ids(s.CausedBy(fork)))
	assert.Equal(t, []string{m}, ids(s.CausedBy(d)))
	assert.Empty(t, s.CausedBy(m), "head has no descendants")
	assert.Nil(t, s.CausedBy("unknown"))
}
