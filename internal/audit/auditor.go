package audit

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
	"github.com/roach88/causal/internal/telemetry"
)

// Options configures an Auditor.
type Options struct {
	// Stores maps store keys to stores. Reactions may target any store in
	// the map, including stores with no bound laws.
	Stores map[string]causal.Handle

	// Laws supplies the laws bound to each store key: a law.Map, a
	// *law.Registry, or a compiled rule-set.
	Laws law.Source

	// AutoRepair writes a successful repair back into the store.
	AutoRepair bool

	// ApplyReactions lets laws write into their reaction targets.
	ApplyReactions bool

	// Sink receives every entry synchronously, in addition to the buffer.
	Sink telemetry.Sink

	// TelemetryCapacity bounds the in-process buffer. Default: telemetry.DefaultCapacity.
	TelemetryCapacity int

	// MaxSteps bounds the writes of one flow. Default: DefaultMaxSteps.
	MaxSteps int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock stamps telemetry entries. Default: causal.SystemClock.
	Clock causal.Clock

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Auditor enforces laws over a set of stores.
//
// Thread-safety: all methods are safe for concurrent use.
type Auditor struct {
	stores         map[string]causal.Handle
	laws           law.Source
	autoRepair     bool
	applyReactions bool
	sink           telemetry.Sink
	buffer         *telemetry.Buffer
	logger         *slog.Logger
	clock          causal.Clock
	tracer         trace.Tracer
	flows          *flowTracker

	mu      sync.Mutex
	active  bool
	tracked map[string]*tracked
}

// New creates an idle auditor.
func New(opts Options) *Auditor {
	a := &Auditor{
		stores:         maps.Clone(opts.Stores),
		laws:           opts.Laws,
		autoRepair:     opts.AutoRepair,
		applyReactions: opts.ApplyReactions,
		sink:           opts.Sink,
		buffer:         telemetry.NewBuffer(opts.TelemetryCapacity),
		logger:         opts.Logger,
		clock:          opts.Clock,
		tracked:        make(map[string]*tracked),
	}
	if a.stores == nil {
		a.stores = make(map[string]causal.Handle)
	}
	if a.laws == nil {
		a.laws = law.Map{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.clock == nil {
		a.clock = causal.SystemClock{}
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	a.tracer = tp.Tracer(telemetry.InstrumentationName)

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	a.flows = newFlowTracker(maxSteps)
	return a
}

// Start subscribes to every store with bound laws and evaluates its current
// state. It is a no-op when the auditor is already active.
//
// Start subscribes before the catch-up evaluation so a write landing between
// the two is still seen. ctx supplies values (trace parents) for the session;
// its cancellation does not stop the auditor, Stop does.
func (a *Auditor) Start(ctx context.Context) {
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return
	}
	a.active = true
	session := context.WithoutCancel(ctx)

	bound := a.laws.ToMap()
	var (
		missing []string
		started []*tracked
	)
	for _, key := range slices.Sorted(maps.Keys(bound)) {
		rules := bound[key]
		if len(rules) == 0 {
			continue
		}
		store, ok := a.stores[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		t := &tracked{key: key, store: store, rules: rules}
		a.tracked[key] = t
		started = append(started, t)
	}
	a.mu.Unlock()

	for _, key := range missing {
		rules := bound[key]
		names := make([]string, len(rules))
		for i, rule := range rules {
			names[i] = rule.Name()
		}
		err := NewUnknownStoreError(key, names[0])
		a.logger.Warn("laws bound to unregistered store",
			"store", key,
			"laws", names,
		)
		a.emit(telemetry.Entry{
			Type:     telemetry.TypeAuditError,
			LawName:  names[0],
			StoreKey: key,
			Severity: telemetry.SeverityError,
			Message:  err.Message,
			Details:  map[string]any{"code": string(err.Code), "laws": names},
		})
	}

	for _, t := range started {
		unwatch := t.store.Watch(func(causal.Event[any]) {
			a.trigger(session, t, false)
		})
		t.mu.Lock()
		t.unwatch = unwatch
		t.mu.Unlock()
	}

	a.logger.Info("auditor started",
		"stores", len(started),
		"unregistered", len(missing),
		"auto_repair", a.autoRepair,
		"apply_reactions", a.applyReactions,
	)

	for _, t := range started {
		a.trigger(session, t, true)
	}
}

// Stop unsubscribes from every store and forgets all tracking state. It is a
// no-op when the auditor is idle. Evaluations already running finish their
// current pass; they are not cancelled.
func (a *Auditor) Stop() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	stopped := a.tracked
	a.tracked = make(map[string]*tracked)
	a.mu.Unlock()

	for _, t := range stopped {
		t.mu.Lock()
		t.closed = true
		unwatch := t.unwatch
		t.unwatch = nil
		t.mu.Unlock()
		if unwatch != nil {
			unwatch()
		}
	}

	a.logger.Info("auditor stopped", "stores", len(stopped))
}

// Scan evaluates every tracked store again, whether or not its head changed.
// A store whose drain loop is running in another goroutine is evaluated by
// that loop. No-op when idle.
func (a *Auditor) Scan(ctx context.Context) {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	keys := slices.Sorted(maps.Keys(a.tracked))
	targets := make([]*tracked, 0, len(keys))
	for _, key := range keys {
		targets = append(targets, a.tracked[key])
	}
	a.mu.Unlock()

	a.logger.Debug("scanning stores", "stores", len(targets))
	for _, t := range targets {
		a.trigger(ctx, t, true)
	}
}

// Telemetry returns a copy of the buffered entries, oldest first.
func (a *Auditor) Telemetry() []telemetry.Entry {
	return a.buffer.Snapshot()
}

// Dropped returns the number of entries evicted from the buffer.
func (a *Auditor) Dropped() uint64 {
	return a.buffer.Dropped()
}

// Active reports whether the auditor is started.
func (a *Auditor) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Tracked returns the keys of the stores being watched, sorted.
func (a *Auditor) Tracked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.tracked))
}

// emit buffers e and forwards it to the sink. A panicking sink is logged and
// otherwise ignored.
func (a *Auditor) emit(e telemetry.Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = a.clock.Now().UTC().Round(0)
	}
	a.buffer.Append(e)

	a.logger.Debug("telemetry",
		"type", string(e.Type),
		"law", e.LawName,
		"store", e.StoreKey,
		"event_id", e.EventID,
	)

	if a.sink == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("telemetry sink panicked",
				"type", string(e.Type),
				"law", e.LawName,
				"panic", p,
			)
		}
	}()
	a.sink.Record(e)
}
