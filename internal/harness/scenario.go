package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/causal/internal/rules"
	"github.com/roach88/causal/internal/telemetry"
)

// Scenario is one scripted run: stores, the laws over them, a sequence of
// steps and the assertions checked afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is an optional rule-set path, relative to the scenario file.
	Rules string `yaml:"rules,omitempty"`

	// Laws are inline law definitions, added after the rule-set's laws.
	Laws []rules.LawSpec `yaml:"laws,omitempty"`

	// Stores are created in order, each with its initial value.
	Stores []StoreDef `yaml:"stores"`

	// Audit configures the auditor.
	Audit AuditSettings `yaml:"audit,omitempty"`

	// Steps run in order after the auditor has started.
	Steps []Step `yaml:"steps"`

	// Assertions are checked once every step has run.
	Assertions []Assertion `yaml:"assertions"`
}

// StoreDef declares one store.
type StoreDef struct {
	Key     string `yaml:"key"`
	Initial any    `yaml:"initial"`
}

// AuditSettings mirrors the auditor options. Nil flags default to true.
type AuditSettings struct {
	AutoRepair     *bool `yaml:"auto_repair,omitempty"`
	ApplyReactions *bool `yaml:"apply_reactions,omitempty"`
	MaxSteps       int   `yaml:"max_steps,omitempty"`
}

func (s AuditSettings) autoRepair() bool     { return s.AutoRepair == nil || *s.AutoRepair }
func (s AuditSettings) applyReactions() bool { return s.ApplyReactions == nil || *s.ApplyReactions }

// Step is one action. Exactly one field is set.
type Step struct {
	Set    *SetStep    `yaml:"set,omitempty"`
	Branch *BranchStep `yaml:"branch,omitempty"`
	Switch *SwitchStep `yaml:"switch,omitempty"`
	Merge  *MergeStep  `yaml:"merge,omitempty"`
	Scan   bool        `yaml:"scan,omitempty"`
}

// SetStep writes a value into a store.
type SetStep struct {
	Store    string `yaml:"store"`
	Value    any    `yaml:"value"`
	Observer string `yaml:"observer,omitempty"`
}

// BranchStep forks a new universe from the store's current universe. The
// universe id is the name unless it is already taken.
type BranchStep struct {
	Store string `yaml:"store"`
	Name  string `yaml:"name"`
}

// SwitchStep changes the store's current universe.
type SwitchStep struct {
	Store    string `yaml:"store"`
	Universe string `yaml:"universe"`
}

// MergeStep merges a universe into the store's current universe.
type MergeStep struct {
	Store    string `yaml:"store"`
	Universe string `yaml:"universe"`
	// Strategy is "ours" (default) or "theirs".
	Strategy string `yaml:"strategy,omitempty"`
}

// Assertion checks the state after the run.
type Assertion struct {
	Type string `yaml:"type"`

	// Store is required by value, history_length and branch_count, and
	// filters telemetry_count.
	Store string `yaml:"store,omitempty"`

	// Expect is the expected value (value).
	Expect any `yaml:"expect,omitempty"`

	// Count is the expected number (history_length, telemetry_count,
	// branch_count).
	Count int `yaml:"count,omitempty"`

	// EntryType and Law filter telemetry_count.
	EntryType string `yaml:"entry_type,omitempty"`
	Law       string `yaml:"law,omitempty"`
}

// Assertion type constants.
const (
	AssertValue          = "value"
	AssertHistoryLength  = "history_length"
	AssertTelemetryCount = "telemetry_count"
	AssertBranchCount    = "branch_count"
)

// LoadScenario reads and parses a scenario YAML file. A relative rules path
// is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario, resolving a relative rules path against
// basePath. Unknown fields are rejected.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) && basePath != "" {
		scenario.Rules = filepath.Join(basePath, scenario.Rules)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rules == "" && len(s.Laws) == 0 {
		return fmt.Errorf("rules or laws is required")
	}
	if s.Rules != "" {
		if _, err := os.Stat(s.Rules); os.IsNotExist(err) {
			return fmt.Errorf("rules file not found: %s", s.Rules)
		}
	}
	if len(s.Stores) == 0 {
		return fmt.Errorf("stores list is required and must be non-empty")
	}
	if s.Audit.MaxSteps < 0 {
		return fmt.Errorf("audit.max_steps must be non-negative")
	}

	known := make(map[string]bool, len(s.Stores))
	for i, def := range s.Stores {
		if def.Key == "" {
			return fmt.Errorf("stores[%d]: key is required", i)
		}
		if known[def.Key] {
			return fmt.Errorf("stores[%d]: duplicate key %q", i, def.Key)
		}
		known[def.Key] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, known); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, known); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, known map[string]bool) error {
	var (
		actions int
		store   string
	)
	if step.Set != nil {
		actions++
		store = step.Set.Store
	}
	if step.Branch != nil {
		actions++
		store = step.Branch.Store
		if step.Branch.Name == "" {
			return fmt.Errorf("steps[%d].branch: name is required", index)
		}
	}
	if step.Switch != nil {
		actions++
		store = step.Switch.Store
		if step.Switch.Universe == "" {
			return fmt.Errorf("steps[%d].switch: universe is required", index)
		}
	}
	if step.Merge != nil {
		actions++
		store = step.Merge.Store
		if step.Merge.Universe == "" {
			return fmt.Errorf("steps[%d].merge: universe is required", index)
		}
		switch step.Merge.Strategy {
		case "", "ours", "theirs":
		default:
			return fmt.Errorf("steps[%d].merge: unknown strategy %q", index, step.Merge.Strategy)
		}
	}
	if step.Scan {
		actions++
	}

	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of set, branch, switch, merge, scan is required", index)
	}
	if !step.Scan && !known[store] {
		return fmt.Errorf("steps[%d]: unknown store %q", index, store)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertValue, AssertHistoryLength, AssertBranchCount:
		if a.Store == "" {
			return fmt.Errorf("assertions[%d]: store is required for %s", index, a.Type)
		}
		if !known[a.Store] {
			return fmt.Errorf("assertions[%d]: unknown store %q", index, a.Store)
		}
	case AssertTelemetryCount:
		if a.EntryType != "" && !telemetry.Type(a.EntryType).Valid() {
			return fmt.Errorf("assertions[%d]: unknown entry_type %q", index, a.EntryType)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
