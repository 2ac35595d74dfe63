// Package harness runs scripted scenarios against causal stores and an
// auditor, and checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: repair_negative_balance
//	description: "A negative balance is repaired to zero"
//	rules: ../rules/accounts.yaml   # optional, relative to the scenario
//	laws:                           # optional inline laws, same shape as a rule-set
//	  - name: non-negative
//	    store: balance
//	    expr: state >= 0
//	    repair: "state < 0 ? 0 : state"
//	stores:
//	  - key: balance
//	    initial: 0
//	audit:
//	  auto_repair: true
//	  apply_reactions: true
//	  max_steps: 256
//	steps:
//	  - set: { store: balance, value: -5, observer: alice }
//	  - branch: { store: balance, name: draft }
//	  - switch: { store: balance, universe: draft }
//	  - merge: { store: balance, universe: draft, strategy: theirs }
//	  - scan: true
//	assertions:
//	  - type: value
//	    store: balance
//	    expect: 0
//	  - type: telemetry_count
//	    entry_type: repair
//	    count: 1
//
// Exactly one action is allowed per step. The audit flags default to true.
//
// # Assertion Types
//
//   - value: the store's current value equals expect (canonical JSON equality)
//   - history_length: the store holds exactly count events
//   - telemetry_count: exactly count entries match entry_type, law and store
//   - branch_count: the store has exactly count universes, main included
//
// # Deterministic Testing
//
// Every store gets a testutil.ManualClock and a testutil.SequenceGenerator
// prefixed with its key, and the auditor stamps telemetry from its own
// ManualClock. Two runs of one scenario produce identical telemetry, which is
// what RunWithGolden compares.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/repair.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
