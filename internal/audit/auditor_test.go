package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
	"github.com/roach88/causal/internal/telemetry"
	"github.com/roach88/causal/internal/testutil"
)

// =============================================================================
// Helpers
// =============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intStore(key string, initial int) *causal.Store[int] {
	return causal.NewStore(key, initial,
		causal.WithClock(testutil.NewManualClock()),
		causal.WithIDs(testutil.NewSequenceGenerator(key)),
	)
}

func handles(stores ...*causal.Store[int]) map[string]causal.Handle {
	out := make(map[string]causal.Handle, len(stores))
	for _, s := range stores {
		out[s.Key()] = causal.Untyped(s)
	}
	return out
}

func newAuditor(stores map[string]causal.Handle, laws law.Source, configure ...func(*Options)) *Auditor {
	opts := Options{
		Stores:         stores,
		Laws:           laws,
		AutoRepair:     true,
		ApplyReactions: true,
		Logger:         quietLogger(),
		Clock:          testutil.NewManualClock(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return New(opts)
}

func nonNegative() law.Law[int] {
	return law.Law[int]{
		Name: "non-negative",
		Evaluate: func(x int) law.Evaluation {
			return law.Check(x >= 0, "value must be >= 0")
		},
		Repair: func(_ context.Context, _ int) (int, error) {
			return 0, nil
		},
	}
}

func pass(int) law.Evaluation { return law.Pass() }

func copyInto(target string, fn func(int) any) law.Reaction[int] {
	return law.Reaction[int]{
		Target: target,
		Compute: func(_ context.Context, x int, _ law.Context) (any, error) {
			return fn(x), nil
		},
	}
}

func identity(x int) any { return x }

func ofType(entries []telemetry.Entry, typ telemetry.Type) []telemetry.Entry {
	return telemetry.Select(entries, telemetry.Filter{Types: []telemetry.Type{typ}})
}

func forEvent(entries []telemetry.Entry, id string) []telemetry.Entry {
	var out []telemetry.Entry
	for _, e := range entries {
		if e.EventID == id {
			out = append(out, e)
		}
	}
	return out
}

// since returns the entries recorded after the first n.
func since(a *Auditor, n int) []telemetry.Entry {
	return a.Telemetry()[n:]
}

// =============================================================================
// Repair
// =============================================================================

func TestAuditor_RepairsNegativeValue(t *testing.T) {
	s := intStore("balance", 0)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	a := newAuditor(handles(s), r)
	a.Start(context.Background())
	defer a.Stop()
	require.Empty(t, a.Telemetry(), "valid initial value produces no entries")

	id := s.Set(-5)

	assert.Equal(t, 0, s.Get())

	entries := forEvent(a.Telemetry(), id)
	require.Len(t, entries, 2)
	assert.Equal(t, telemetry.TypeViolation, entries[0].Type)
	assert.Equal(t, telemetry.SeverityWarn, entries[0].Severity)
	assert.Equal(t, telemetry.TypeRepair, entries[1].Type)
	assert.Equal(t, true, entries[1].Details["postRepairValid"])
	assert.Equal(t, 0, entries[1].Details["repairedValue"])
	assert.Len(t, a.Telemetry(), 2)

	history := s.History()
	require.Len(t, history, 2)
	repair := history[1]
	assert.Equal(t, causal.KindRepair, repair.Kind)
	assert.Equal(t, "law:non-negative", repair.ObserverID)
	assert.Equal(t, id, repair.Flow)
	assert.Equal(t, []string{id}, repair.ParentIDs)
}

func TestAuditor_AutoRepairDisabled(t *testing.T) {
	s := intStore("balance", 0)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	a := newAuditor(handles(s), r, func(o *Options) { o.AutoRepair = false })
	a.Start(context.Background())
	defer a.Stop()

	s.Set(-5)

	assert.Equal(t, -5, s.Get())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, telemetry.Count(a.Telemetry(), telemetry.TypeViolation))
	assert.Equal(t, 0, telemetry.Count(a.Telemetry(), telemetry.TypeRepair))
}

func TestAuditor_RepairStillInvalid(t *testing.T) {
	s := intStore("balance", 0)
	l := nonNegative()
	l.Repair = func(_ context.Context, x int) (int, error) { return x, nil }
	r := law.NewRegistry()
	law.Add(r, "balance", l)

	a := newAuditor(handles(s), r)
	a.Start(context.Background())
	defer a.Stop()

	s.Set(-1)

	assert.Equal(t, 1, s.Len(), "invalid repair is not written")
	repairs := ofType(a.Telemetry(), telemetry.TypeRepair)
	require.Len(t, repairs, 1)
	assert.Equal(t, false, repairs[0].Details["postRepairValid"])
	assert.Equal(t, telemetry.SeverityError, repairs[0].Severity)
	assert.Equal(t, []string{"value must be >= 0"}, repairs[0].Details["violations"])
}

func TestAuditor_RepairError(t *testing.T) {
	s := intStore("balance", 0)
	l := nonNegative()
	l.Repair = func(context.Context, int) (int, error) { return 0, errors.New("no fallback") }
	r := law.NewRegistry()
	law.Add(r, "balance", l)

	a := newAuditor(handles(s), r)
	a.Start(context.Background())
	defer a.Stop()

	s.Set(-1)

	assert.Equal(t, -1, s.Get())
	repairs := ofType(a.Telemetry(), telemetry.TypeRepair)
	require.Len(t, repairs, 1)
	assert.Equal(t, "no fallback", repairs[0].Details["error"])
	assert.Equal(t, false, repairs[0].Details["postRepairValid"])
}

func TestAuditor_CatchUpRepairsExistingState(t *testing.T) {
	s := intStore("balance", 0)
	id := s.Set(-3)

	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())
	a := newAuditor(handles(s), r)
	a.Start(context.Background())
	defer a.Stop()

	assert.Equal(t, 0, s.Get())
	violations := ofType(a.Telemetry(), telemetry.TypeViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, id, violations[0].EventID)
}

func TestAuditor_CatchUpRepairsInitialValue(t *testing.T) {
	s := intStore("balance", -1)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	a := newAuditor(handles(s), r)
	a.Start(context.Background())
	defer a.Stop()

	assert.Equal(t, 0, s.Get())
	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, causal.KindRepair, history[0].Kind)
	assert.Equal(t, "initial:balance", history[0].Flow)
}

// =============================================================================
// Reactions
// =============================================================================

func TestAuditor_ReactionVisibleBeforePassEnds(t *testing.T) {
	a1 := intStore("a", 0)
	b := intStore("b", 0)

	var seen []int
	r := law.NewRegistry()
	law.Add(r, "a", law.Law[int]{
		Name:      "double",
		Evaluate:  pass,
		Reactions: []law.Reaction[int]{copyInto("b", func(x int) any { return x * 2 })},
	})
	law.Add(r, "a", law.Law[int]{
		Name: "probe",
		Evaluate: func(int) law.Evaluation {
			seen = append(seen, b.Get())
			return law.Pass()
		},
	})
	law.Add(r, "b", law.Law[int]{
		Name:     "b-non-negative",
		Evaluate: func(x int) law.Evaluation { return law.Check(x >= 0, "b must be >= 0") },
	})

	aud := newAuditor(handles(a1, b), r)
	aud.Start(context.Background())
	defer aud.Stop()

	id := a1.Set(3)

	assert.Equal(t, 6, b.Get())
	require.NotEmpty(t, seen)
	assert.Equal(t, 6, seen[len(seen)-1], "later laws in the pass see the reaction's write")

	reactions := ofType(forEvent(aud.Telemetry(), id), telemetry.TypeReaction)
	require.Len(t, reactions, 1)
	assert.Equal(t, "b", reactions[0].Details["target"])
	assert.Equal(t, 6, reactions[0].Details["value"])

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, causal.KindReaction, latest.Kind)
	assert.Equal(t, "law:double", latest.ObserverID)
	assert.Equal(t, id, latest.Flow)
	assert.Equal(t, latest.ID, reactions[0].Details["targetEventId"])
}

func TestAuditor_ReactionsDisabled(t *testing.T) {
	a1 := intStore("a", 0)
	b := intStore("b", 0)
	r := law.NewRegistry()
	law.Add(r, "a", law.Law[int]{
		Name:      "copy",
		Evaluate:  pass,
		Reactions: []law.Reaction[int]{copyInto("b", identity)},
	})

	aud := newAuditor(handles(a1, b), r, func(o *Options) { o.ApplyReactions = false })
	aud.Start(context.Background())
	defer aud.Stop()

	a1.Set(4)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, telemetry.Count(aud.Telemetry(), telemetry.TypeReaction))
}

func TestAuditor_ReactionsUseRepairedValue(t *testing.T) {
	a1 := intStore("a", 1)
	b := intStore("b", 99)
	l := nonNegative()
	l.Reactions = []law.Reaction[int]{copyInto("b", identity)}
	r := law.NewRegistry()
	law.Add(r, "a", l)

	aud := newAuditor(handles(a1, b), r)
	aud.Start(context.Background())
	defer aud.Stop()
	require.Equal(t, 1, b.Get())

	a1.Set(-5)

	assert.Equal(t, 0, a1.Get())
	assert.Equal(t, 0, b.Get())
	for _, ev := range b.History() {
		assert.NotEqual(t, -5, ev.Value)
	}
}

func TestAuditor_ReactionFaultIsolation(t *testing.T) {
	a1 := intStore("a", 0)
	b := intStore("b", 0)
	c := intStore("c", 0)
	r := law.NewRegistry()
	law.Add(r, "a", law.Law[int]{
		Name:     "fan-out",
		Evaluate: pass,
		Reactions: []law.Reaction[int]{
			copyInto("ghost", identity),
			copyInto("b", func(int) any { return "text" }),
			{Target: "c", Compute: func(context.Context, int, law.Context) (any, error) {
				panic("compute exploded")
			}},
			copyInto("c", func(x int) any { return x + 1 }),
		},
	})

	aud := newAuditor(handles(a1, b, c), r)
	aud.Start(context.Background())
	defer aud.Stop()

	before := len(aud.Telemetry())
	a1.Set(10)
	entries := since(aud, before)

	assert.Equal(t, 11, c.Get(), "healthy reaction still applied")
	assert.Equal(t, 0, b.Len())

	errs := ofType(entries, telemetry.TypeReactionError)
	require.Len(t, errs, 3)
	assert.Equal(t, "ghost", errs[0].Details["target"])
	assert.Equal(t, string(ErrCodeUnknownStore), errs[0].Details["code"])
	assert.Equal(t, "b", errs[1].Details["target"])
	assert.Equal(t, string(ErrCodeTypeMismatch), errs[1].Details["code"])
	assert.Equal(t, "c", errs[2].Details["target"])
	assert.Contains(t, errs[2].Details["error"], "compute exploded")
	assert.Len(t, ofType(entries, telemetry.TypeReaction), 1)
}

// =============================================================================
// Cycles and quota
// =============================================================================

func TestAuditor_MirrorCycleTerminates(t *testing.T) {
	a1 := intStore("a", 0)
	b := intStore("b", 0)
	r := law.NewRegistry()
	law.Add(r, "a", law.Law[int]{Name: "a-to-b", Evaluate: pass, Reactions: []law.Reaction[int]{copyInto("b", identity)}})
	law.Add(r, "b", law.Law[int]{Name: "b-to-a", Evaluate: pass, Reactions: []law.Reaction[int]{copyInto("a", identity)}})

	aud := newAuditor(handles(a1, b), r)
	aud.Start(context.Background())
	defer aud.Stop()

	lenA, lenB, before := a1.Len(), b.Len(), len(aud.Telemetry())
	a1.Set(5)

	assert.Equal(t, lenA+2, a1.Len(), "set plus one mirrored write back")
	assert.Equal(t, lenB+1, b.Len())
	assert.Equal(t, 5, a1.Get())
	assert.Equal(t, 5, b.Get())

	entries := since(aud, before)
	assert.Len(t, ofType(entries, telemetry.TypeReaction), 2)
	assert.Empty(t, ofType(entries, telemetry.TypeReactionError), "suppressed repeats are not errors")
}

func TestAuditor_ReactionQuota(t *testing.T) {
	a1 := intStore("a", 0)
	b := intStore("b", 0)
	inc := func(x int) any { return x + 1 }
	r := law.NewRegistry()
	law.Add(r, "a", law.Law[int]{Name: "a-to-b", Evaluate: pass, Reactions: []law.Reaction[int]{copyInto("b", inc)}})
	law.Add(r, "b", law.Law[int]{Name: "b-to-a", Evaluate: pass, Reactions: []law.Reaction[int]{copyInto("a", inc)}})

	aud := newAuditor(handles(a1, b), r, func(o *Options) { o.MaxSteps = 10 })
	aud.Start(context.Background())
	defer aud.Stop()

	lenA, lenB, before := a1.Len(), b.Len(), len(aud.Telemetry())
	a1.Set(100)

	assert.Equal(t, 1+10, a1.Len()-lenA+b.Len()-lenB, "one set plus MaxSteps auditor writes")
	assert.Equal(t, 110, a1.Get())
	assert.Equal(t, 109, b.Get())

	errs := ofType(since(aud, before), telemetry.TypeReactionError)
	require.Len(t, errs, 1)
	assert.Equal(t, string(ErrCodeQuotaExceeded), errs[0].Details["code"])
	assert.Equal(t, "a-to-b", errs[0].LawName)
}

func TestAuditor_RepairQuota(t *testing.T) {
	s := intStore("x", 7)
	r := law.NewRegistry()
	law.Add(r, "x", law.Law[int]{
		Name:     "at-least-ten",
		Evaluate: func(x int) law.Evaluation { return law.Check(x >= 10, "x must be >= 10") },
		Repair:   func(context.Context, int) (int, error) { return 10, nil },
	})
	law.Add(r, "x", law.Law[int]{
		Name:     "at-most-five",
		Evaluate: func(x int) law.Evaluation { return law.Check(x <= 5, "x must be <= 5") },
		Repair:   func(context.Context, int) (int, error) { return 5, nil },
	})

	aud := newAuditor(handles(s), r, func(o *Options) { o.MaxSteps = 10 })
	aud.Start(context.Background())
	defer aud.Stop()

	n, before := s.Len(), len(aud.Telemetry())
	s.Set(7)

	assert.Equal(t, n+1+10, s.Len())
	errs := ofType(since(aud, before), telemetry.TypeAuditError)
	require.Len(t, errs, 1)
	assert.Equal(t, string(ErrCodeQuotaExceeded), errs[0].Details["code"])
}

func TestAuditor_FlowStateReleased(t *testing.T) {
	a1 := intStore("a", 0)
	b := intStore("b", 0)
	r := law.NewRegistry()
	law.Add(r, "a", law.Law[int]{Name: "a-to-b", Evaluate: pass, Reactions: []law.Reaction[int]{copyInto("b", identity)}})

	aud := newAuditor(handles(a1, b), r)
	aud.Start(context.Background())
	defer aud.Stop()

	a1.Set(1)
	a1.Set(1)

	assert.Equal(t, 0, aud.flows.active())
	assert.Equal(t, 0, aud.flows.cycles.HistorySize())
	assert.Equal(t, 1, b.Get())
	assert.Equal(t, 3, b.Len(), "catch-up plus one write per flow")
}

// =============================================================================
// Failures
// =============================================================================

func TestAuditor_UnregisteredStore(t *testing.T) {
	r := law.NewRegistry()
	law.Add(r, "ghost", nonNegative())
	law.Add(r, "ghost", law.Law[int]{Name: "second", Evaluate: pass})

	aud := newAuditor(nil, r)
	aud.Start(context.Background())
	aud.Start(context.Background())

	errs := ofType(aud.Telemetry(), telemetry.TypeAuditError)
	require.Len(t, errs, 1)
	assert.Equal(t, "ghost", errs[0].StoreKey)
	assert.Equal(t, "non-negative", errs[0].LawName)
	assert.Equal(t, string(ErrCodeUnknownStore), errs[0].Details["code"])
	assert.Empty(t, aud.Tracked())

	aud.Stop()
	aud.Start(context.Background())
	defer aud.Stop()
	assert.Len(t, ofType(aud.Telemetry(), telemetry.TypeAuditError), 2)
}

func TestAuditor_LawTypeMismatch(t *testing.T) {
	s := intStore("n", 0)
	evals := 0
	r := law.NewRegistry()
	law.Add(r, "n", law.Law[string]{
		Name:     "label",
		Evaluate: func(string) law.Evaluation { return law.Pass() },
	})
	law.Add(r, "n", law.Law[int]{
		Name:     "count",
		Evaluate: func(int) law.Evaluation { evals++; return law.Pass() },
	})

	aud := newAuditor(handles(s), r)
	aud.Start(context.Background())
	defer aud.Stop()

	errs := ofType(aud.Telemetry(), telemetry.TypeAuditError)
	require.Len(t, errs, 1)
	assert.Equal(t, "label", errs[0].LawName)
	assert.Equal(t, string(ErrCodeTypeMismatch), errs[0].Details["code"])
	assert.Equal(t, 1, evals, "sibling law still evaluated")
}

func TestAuditor_PanickingLawIsolated(t *testing.T) {
	s := intStore("n", 0)
	evals := 0
	r := law.NewRegistry()
	law.Add(r, "n", law.Law[int]{
		Name: "boom",
		Evaluate: func(x int) law.Evaluation {
			if x == 13 {
				panic("unlucky")
			}
			return law.Pass()
		},
	})
	law.Add(r, "n", law.Law[int]{
		Name:     "count",
		Evaluate: func(int) law.Evaluation { evals++; return law.Pass() },
	})

	aud := newAuditor(handles(s), r)
	aud.Start(context.Background())
	defer aud.Stop()

	s.Set(13)
	s.Set(14)

	errs := ofType(aud.Telemetry(), telemetry.TypeAuditError)
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].LawName)
	assert.Equal(t, string(ErrCodeExecutionFailed), errs[0].Details["code"])
	assert.Contains(t, errs[0].Details["error"], "unlucky")
	assert.Equal(t, 3, evals)
}

func TestAuditor_SinkPanicRecovered(t *testing.T) {
	s := intStore("balance", 0)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	aud := newAuditor(handles(s), r, func(o *Options) {
		o.Sink = telemetry.SinkFunc(func(telemetry.Entry) { panic("sink down") })
	})
	aud.Start(context.Background())
	defer aud.Stop()

	assert.NotPanics(t, func() { s.Set(-1) })
	assert.Equal(t, 0, s.Get())
	assert.Len(t, aud.Telemetry(), 2)
}

func TestAuditor_SinkReceivesEntries(t *testing.T) {
	s := intStore("balance", 0)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	var got []telemetry.Entry
	aud := newAuditor(handles(s), r, func(o *Options) {
		o.Sink = telemetry.SinkFunc(func(e telemetry.Entry) { got = append(got, e) })
	})
	aud.Start(context.Background())
	defer aud.Stop()

	s.Set(-1)

	assert.Equal(t, aud.Telemetry(), got)
	for _, e := range got {
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestAuditor_TelemetryCapacity(t *testing.T) {
	s := intStore("n", 0)
	r := law.NewRegistry()
	law.Add(r, "n", law.Law[int]{
		Name:     "big",
		Evaluate: func(x int) law.Evaluation { return law.Check(x > 100, "too small") },
	})

	aud := newAuditor(handles(s), r, func(o *Options) { o.TelemetryCapacity = 2 })
	aud.Start(context.Background())
	defer aud.Stop()

	for i := 1; i <= 5; i++ {
		s.Set(i)
	}

	entries := aud.Telemetry()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), aud.Dropped())
	assert.Equal(t, 5, entries[1].Details["value"])
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestAuditor_StartIsIdempotent(t *testing.T) {
	s := intStore("n", 0)
	evals := 0
	r := law.NewRegistry()
	law.Add(r, "n", law.Law[int]{Name: "count", Evaluate: func(int) law.Evaluation { evals++; return law.Pass() }})

	aud := newAuditor(handles(s), r)
	aud.Start(context.Background())
	aud.Start(context.Background())

	assert.True(t, aud.Active())
	assert.Equal(t, 1, evals)
	assert.Equal(t, 1, s.SubscriberCount())
	assert.Equal(t, []string{"n"}, aud.Tracked())

	s.Set(1)
	assert.Equal(t, 2, evals, "one evaluation per write")

	aud.Stop()
	aud.Stop()
	assert.False(t, aud.Active())
	assert.Equal(t, 0, s.SubscriberCount())

	s.Set(2)
	assert.Equal(t, 2, evals, "no evaluation after stop")

	aud.Start(context.Background())
	defer aud.Stop()
	assert.Equal(t, 1, s.SubscriberCount())
	assert.Equal(t, 3, evals, "restart catches up")
}

func TestAuditor_StopBeforeStart(t *testing.T) {
	aud := newAuditor(nil, nil)
	assert.NotPanics(t, aud.Stop)
	assert.False(t, aud.Active())
	assert.NotPanics(t, func() { aud.Scan(context.Background()) })
}

func TestAuditor_ScanBypassesDedup(t *testing.T) {
	s := intStore("n", 0)
	evals := 0
	r := law.NewRegistry()
	law.Add(r, "n", law.Law[int]{Name: "count", Evaluate: func(int) law.Evaluation { evals++; return law.Pass() }})

	aud := newAuditor(handles(s), r)
	aud.Start(context.Background())
	defer aud.Stop()
	s.Set(1)
	require.Equal(t, 2, evals)

	_, err := s.Branch("draft")
	require.NoError(t, err)
	assert.Equal(t, 2, evals, "fork in another universe leaves the head unchanged")

	aud.Scan(context.Background())
	aud.Scan(context.Background())
	assert.Equal(t, 4, evals)
}

func TestAuditor_EvaluatesSwitchedUniverse(t *testing.T) {
	s := intStore("balance", 0)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	aud := newAuditor(handles(s), r)
	aud.Start(context.Background())
	defer aud.Stop()

	draft, err := s.Branch("draft")
	require.NoError(t, err)
	require.NoError(t, s.SwitchBranch(draft))

	s.Set(-2)

	assert.Equal(t, 0, s.Get())
	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, draft, latest.UniverseID)
	assert.Equal(t, causal.KindRepair, latest.Kind)
}

func TestAuditor_ConcurrentProducers(t *testing.T) {
	s := causal.NewStore("n", 0)
	var inFlight, maxInFlight, evals atomic.Int32
	r := law.NewRegistry()
	law.Add(r, "n", law.Law[int]{
		Name: "serial",
		Evaluate: func(int) law.Evaluation {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			evals.Add(1)
			time.Sleep(10 * time.Microsecond)
			inFlight.Add(-1)
			return law.Pass()
		},
	})

	aud := newAuditor(map[string]causal.Handle{"n": causal.Untyped(s)}, r)
	aud.Start(context.Background())
	defer aud.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Set(g*100 + i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "evaluations of one store never overlap")
	assert.LessOrEqual(t, evals.Load(), int32(1+400))

	head, ok := s.LastEventID()
	require.True(t, ok)
	aud.mu.Lock()
	tr := aud.tracked["n"]
	aud.mu.Unlock()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, head, tr.lastEventID, "final head evaluated")
	assert.False(t, tr.running)
}

func TestAuditor_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	s := intStore("balance", 0)
	r := law.NewRegistry()
	law.Add(r, "balance", nonNegative())

	aud := newAuditor(handles(s), r, func(o *Options) { o.TracerProvider = tp })
	aud.Start(context.Background())
	defer aud.Stop()

	s.Set(-1)

	names := make(map[string]int)
	for _, span := range sr.Ended() {
		names[span.Name()]++
	}
	// catch-up, the write, and the repaired event
	assert.Equal(t, 3, names["audit.evaluate_store"])
	assert.Equal(t, 3, names["audit.law"])
}
