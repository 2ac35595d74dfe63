package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/causal/internal/audit"
	"github.com/roach88/causal/internal/rules"
	"github.com/roach88/causal/internal/telemetry"
)

// AssertionError is returned when an assertion fails.
// It includes the telemetry of the run to help debug the failure.
type AssertionError struct {
	Type      string            // Assertion type for categorization
	Expected  string            // Human-readable expected outcome
	Actual    string            // Human-readable actual outcome
	Telemetry []telemetry.Entry // Full telemetry for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Telemetry) > 0 {
		fmt.Fprintf(&buf, "\nTelemetry:\n")
		for i, entry := range e.Telemetry {
			fmt.Fprintf(&buf, "  [%d] %s %s/%s %s\n", i+1, entry.Type, entry.StoreKey, entry.LawName, entry.Message)
		}
	}
	return buf.String()
}

func (h *Harness) evaluateAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertValue:
		return assertValue(result, a)
	case AssertHistoryLength:
		return assertHistoryLength(result, a)
	case AssertTelemetryCount:
		return assertTelemetryCount(result, a)
	case AssertBranchCount:
		got := len(h.stores[a.Store].ListBranches())
		if got != a.Count {
			return &AssertionError{
				Type:      AssertBranchCount,
				Expected:  fmt.Sprintf("%s has %d universes", a.Store, a.Count),
				Actual:    fmt.Sprintf("%d universes", got),
				Telemetry: result.Telemetry,
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertValue compares the store's value with the expectation as canonical
// JSON, so 1 and 1.0 or differently ordered maps are equal.
func assertValue(result *Result, a Assertion) error {
	want, err := audit.Canonical(rules.Normalize(a.Expect))
	if err != nil {
		return fmt.Errorf("encode expected value: %w", err)
	}
	got, err := audit.Canonical(result.Values[a.Store])
	if err != nil {
		return fmt.Errorf("encode value of %s: %w", a.Store, err)
	}
	if bytes.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:      AssertValue,
		Expected:  fmt.Sprintf("%s = %s", a.Store, want),
		Actual:    string(got),
		Telemetry: result.Telemetry,
	}
}

func assertHistoryLength(result *Result, a Assertion) error {
	got := result.HistoryLengths[a.Store]
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:      AssertHistoryLength,
		Expected:  fmt.Sprintf("%s has %d events", a.Store, a.Count),
		Actual:    fmt.Sprintf("%d events", got),
		Telemetry: result.Telemetry,
	}
}

func assertTelemetryCount(result *Result, a Assertion) error {
	f := telemetry.Filter{LawName: a.Law, StoreKey: a.Store}
	if a.EntryType != "" {
		f.Types = []telemetry.Type{telemetry.Type(a.EntryType)}
	}
	got := len(telemetry.Select(result.Telemetry, f))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:      AssertTelemetryCount,
		Expected:  fmt.Sprintf("%d entries matching %s", a.Count, describeFilter(a)),
		Actual:    fmt.Sprintf("%d entries", got),
		Telemetry: result.Telemetry,
	}
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.EntryType != "" {
		parts = append(parts, "type="+a.EntryType)
	}
	if a.Law != "" {
		parts = append(parts, "law="+a.Law)
	}
	if a.Store != "" {
		parts = append(parts, "store="+a.Store)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}
