package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/causal/internal/audit"
	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
	"github.com/roach88/causal/internal/rules"
	"github.com/roach88/causal/internal/testutil"
)

// Harness holds the live state of one scenario run.
type Harness struct {
	stores  map[string]*causal.Store[any]
	auditor *audit.Auditor
	logger  *slog.Logger
}

// Run executes a scenario with logging discarded.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(context.Background(), scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the rule-set and inline laws
//  2. Create the stores with deterministic clocks and ids
//  3. Start the auditor (catch-up evaluation of the initial values)
//  4. Execute the steps; a failing step is recorded and the run continues
//  5. Stop the auditor and check the assertions
//
// The returned error covers setup failures only (bad rules). Step and
// assertion failures are reported in the Result.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	laws, err := compileLaws(scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	h := &Harness{
		stores: make(map[string]*causal.Store[any], len(scenario.Stores)),
		logger: logger.With("scenario", scenario.Name),
	}
	handles := make(map[string]causal.Handle, len(scenario.Stores))
	for _, def := range scenario.Stores {
		s := causal.NewStore[any](def.Key, rules.Normalize(def.Initial),
			causal.WithClock(testutil.NewManualClock()),
			causal.WithIDs(testutil.NewSequenceGenerator(def.Key)),
		)
		h.stores[def.Key] = s
		handles[def.Key] = causal.Untyped(s)
	}

	h.auditor = audit.New(audit.Options{
		Stores:         handles,
		Laws:           laws,
		AutoRepair:     scenario.Audit.autoRepair(),
		ApplyReactions: scenario.Audit.applyReactions(),
		MaxSteps:       scenario.Audit.MaxSteps,
		Logger:         h.logger,
		Clock:          testutil.NewManualClock(),
	})

	result := NewResult()

	h.auditor.Start(ctx)
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			h.logger.Warn("step failed", "step", i, "error", err)
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		}
	}
	h.auditor.Stop()

	result.Telemetry = h.auditor.Telemetry()
	for key, s := range h.stores {
		result.Values[key] = s.Get()
		result.HistoryLengths[key] = s.Len()
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluateAssertion(a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	h.logger.Debug("scenario finished",
		"pass", result.Pass,
		"telemetry", len(result.Telemetry),
		"errors", len(result.Errors),
	)
	return result, nil
}

// compileLaws merges the scenario's rule-set file and inline laws into one
// rule-set and compiles it.
func compileLaws(s *Scenario) (*law.Registry, error) {
	rs := &rules.RuleSet{Version: "1.0.0", Name: s.Name}
	if s.Rules != "" {
		loaded, err := rules.Load(s.Rules)
		if err != nil {
			return nil, err
		}
		rs.Version = loaded.Version
		rs.Laws = append(rs.Laws, loaded.Laws...)
	}
	rs.Laws = append(rs.Laws, slices.Clone(s.Laws)...)
	return rules.Compile(rs)
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Set != nil:
		s := h.stores[step.Set.Store]
		id := s.SetWithMeta(rules.Normalize(step.Set.Value), causal.Meta{ObserverID: step.Set.Observer})
		h.logger.Debug("set", "store", step.Set.Store, "event_id", id)
		return nil

	case step.Branch != nil:
		id, err := h.stores[step.Branch.Store].Branch(step.Branch.Name)
		if err != nil {
			return err
		}
		h.logger.Debug("branch", "store", step.Branch.Store, "universe", id)
		return nil

	case step.Switch != nil:
		return h.stores[step.Switch.Store].SwitchBranch(step.Switch.Universe)

	case step.Merge != nil:
		resolve, err := causal.ResolverFor[any](step.Merge.Strategy)
		if err != nil {
			return err
		}
		_, err = h.stores[step.Merge.Store].Merge(step.Merge.Universe, resolve)
		return err

	case step.Scan:
		h.auditor.Scan(ctx)
		return nil
	}
	return fmt.Errorf("empty step")
}
