package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causal/internal/telemetry"
)

// ============================================================================
// Scenario files
// ============================================================================

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_ScenarioFilesPass(t *testing.T) {
	for _, name := range []string{"repair_negative_balance", "reaction_ledger", "branch_merge"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_RepairNegativeBalanceGolden(t *testing.T) {
	require.NoError(t, RunWithGolden(t, loadTestScenario(t, "repair_negative_balance")))
}

func TestRun_ReactionLedgerValues(t *testing.T) {
	result, err := Run(loadTestScenario(t, "reaction_ledger"))
	require.NoError(t, err)

	assert.Equal(t, []any{int64(0), int64(10), int64(25)}, result.Values["ledger"])
	assert.Equal(t, int64(25), result.Values["balance"])
	assert.Equal(t, 3, result.HistoryLengths["ledger"])

	reactions := telemetry.Select(result.Telemetry, telemetry.Filter{Types: []telemetry.Type{telemetry.TypeReaction}})
	require.Len(t, reactions, 3)
	assert.Empty(t, reactions[0].EventID, "catch-up evaluates the initial value")
	assert.Equal(t, "balance-0001", reactions[1].EventID)
	assert.Equal(t, "bob", reactions[2].ObserverID)
}

func TestRun_BranchMergeKeepsRepairInDraft(t *testing.T) {
	result, err := Run(loadTestScenario(t, "branch_merge"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	violations := telemetry.Select(result.Telemetry, telemetry.Filter{Types: []telemetry.Type{telemetry.TypeViolation}})
	require.Len(t, violations, 1)
	assert.Equal(t, "draft", violations[0].UniverseID)
	assert.Equal(t, "carol", violations[0].ObserverID)
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "reaction_ledger")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := TraceSnapshot{ScenarioName: scenario.Name, Telemetry: first.Telemetry, Values: first.Values}.Canonical()
	require.NoError(t, err)
	b, err := TraceSnapshot{ScenarioName: scenario.Name, Telemetry: second.Telemetry, Values: second.Values}.Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

// ============================================================================
// Inline scenarios
// ============================================================================

func parseInline(t *testing.T, src string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(src), "")
	require.NoError(t, err)
	return scenario
}

const balanceLaw = `
laws:
  - name: non-negative
    store: balance
    expr: state >= 0
    repair: "state < 0 ? 0 : state"
stores:
  - key: balance
    initial: 0
`

func TestRun_AutoRepairDisabled(t *testing.T) {
	scenario := parseInline(t, `
name: no_repair
description: repairs are off
audit:
  auto_repair: false
`+balanceLaw+`
steps:
  - set: { store: balance, value: -5 }
assertions:
  - type: value
    store: balance
    expect: -5
  - type: telemetry_count
    entry_type: violation
    count: 1
  - type: telemetry_count
    entry_type: repair
    count: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailingAssertionIsReported(t *testing.T) {
	scenario := parseInline(t, `
name: wrong_expectation
description: expects the unrepaired value
`+balanceLaw+`
steps:
  - set: { store: balance, value: -5 }
assertions:
  - type: value
    store: balance
    expect: -5
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], "Assertion failed: value")
	assert.Contains(t, result.Errors[0], "Actual: 0")
}

func TestRun_StepErrorIsRecordedAndRunContinues(t *testing.T) {
	scenario := parseInline(t, `
name: bad_switch
description: switching to an unknown universe fails
`+balanceLaw+`
steps:
  - switch: { store: balance, universe: nowhere }
  - set: { store: balance, value: 3 }
assertions:
  - type: value
    store: balance
    expect: 3
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0]")
	assert.Equal(t, int64(3), result.Values["balance"])
}

func TestRun_UnregisteredStoreEmitsAuditError(t *testing.T) {
	scenario := parseInline(t, `
name: unregistered
description: a law bound to a store that does not exist
laws:
  - name: positive
    store: missing
    expr: state > 0
stores:
  - key: balance
    initial: 0
assertions:
  - type: telemetry_count
    entry_type: audit-error
    store: missing
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidLawsFailSetup(t *testing.T) {
	scenario := parseInline(t, `
name: bad_law
description: the law has no check
laws:
  - name: empty
    store: balance
stores:
  - key: balance
    initial: 0
assertions:
  - type: history_length
    store: balance
    count: 0
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "R104")
}

func TestRun_ScanReevaluatesAfterSwitch(t *testing.T) {
	scenario := parseInline(t, `
name: scan_after_switch
description: switching records no event, a scan evaluates the new universe
audit:
  auto_repair: false
`+balanceLaw+`
steps:
  - branch: { store: balance, name: draft }
  - switch: { store: balance, universe: draft }
  - scan: true
assertions:
  - type: telemetry_count
    entry_type: violation
    count: 0
  - type: branch_count
    store: balance
    count: 2
  - type: history_length
    store: balance
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
