package audit

import "fmt"

// DefaultMaxSteps bounds the auditor writes (repairs plus reactions) of one flow.
const DefaultMaxSteps = 256

// QuotaEnforcer counts the writes of one flow against a limit.
//
// The cycle guard only catches exact repeats; the quota catches propagations
// that keep producing new values (a counter bouncing between two stores, two
// laws repairing against each other).
//
// Not safe for concurrent use; flowTracker serializes access.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer allowing maxSteps writes.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one write and fails once the limit is exceeded.
func (q *QuotaEnforcer) Check(flow string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Flow:  flow,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the number of writes counted.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned by Check once a flow is over quota.
type StepsExceededError struct {
	Flow  string
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max steps: %d > %d", e.Flow, e.Steps, e.Limit)
}
