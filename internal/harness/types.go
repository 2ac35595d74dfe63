package harness

import "github.com/roach88/causal/internal/telemetry"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step ran and every assertion held.
	Pass bool `json:"pass"`

	// Telemetry holds the auditor's entries, oldest first.
	Telemetry []telemetry.Entry `json:"telemetry"`

	// Errors contains step failures and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Values maps each store key to its final current value.
	Values map[string]any `json:"values"`

	// HistoryLengths maps each store key to its event count.
	HistoryLengths map[string]int `json:"historyLengths"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:           true,
		Telemetry:      []telemetry.Entry{},
		Errors:         []string{},
		Values:         make(map[string]any),
		HistoryLengths: make(map[string]int),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
