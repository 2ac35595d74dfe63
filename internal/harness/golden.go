package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/causal/internal/audit"
	"github.com/roach88/causal/internal/telemetry"
)

// TraceSnapshot captures the observable outcome of a scenario run.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	Telemetry    []telemetry.Entry `json:"telemetry"`
	Values       map[string]any    `json:"values"`
}

// Canonical returns the RFC 8785 encoding of the snapshot.
func (s TraceSnapshot) Canonical() ([]byte, error) {
	if s.Telemetry == nil {
		s.Telemetry = []telemetry.Entry{}
	}
	return audit.Canonical(s)
}

// RunWithGolden executes a scenario and compares its telemetry and final
// values against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be run. A mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against the named golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Telemetry:    result.Telemetry,
		Values:       result.Values,
	}
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
