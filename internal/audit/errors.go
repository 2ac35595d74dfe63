package audit

import (
	"errors"
	"fmt"
)

// RuntimeError is a failure detected by the auditor itself rather than
// reported by a law.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Flow identifies the affected propagation.
	Flow string

	// LawName identifies the law involved, if any.
	LawName string

	// Target is the store key a reaction tried to write.
	Target string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates a reaction would repeat a write already
	// made in the same flow.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeQuotaExceeded indicates a flow exceeded the max steps quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeUnknownStore indicates a law or reaction names an unregistered store.
	ErrCodeUnknownStore RuntimeErrorCode = "UNKNOWN_STORE"

	// ErrCodeTypeMismatch indicates a value does not have the store's or law's type.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeExecutionFailed indicates a law panicked.
	ErrCodeExecutionFailed RuntimeErrorCode = "EXECUTION_FAILED"
)

func (e *RuntimeError) Error() string {
	switch {
	case e.Flow != "" && e.LawName != "":
		return fmt.Sprintf("%s: %s (flow=%s, law=%s)", e.Code, e.Message, e.Flow, e.LawName)
	case e.Flow != "":
		return fmt.Sprintf("%s: %s (flow=%s)", e.Code, e.Message, e.Flow)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// CodeOf returns the code of the RuntimeError in err's chain, or "".
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsCycleError reports whether err is a cycle guard error.
func IsCycleError(err error) bool {
	return CodeOf(err) == ErrCodeCycleDetected
}

// IsQuotaError reports whether err is a quota error.
func IsQuotaError(err error) bool {
	var se *StepsExceededError
	return CodeOf(err) == ErrCodeQuotaExceeded || errors.As(err, &se)
}

// NewCycleError creates a RuntimeError for a suppressed repeat reaction.
func NewCycleError(flow, lawName, target string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("reaction into %s already wrote this value in flow", target),
		Flow:    flow,
		LawName: lawName,
		Target:  target,
	}
}

// NewQuotaError creates a RuntimeError for an exhausted flow.
func NewQuotaError(flow, lawName string, cause *StepsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("flow exceeded max steps (%d > %d)", cause.Steps, cause.Limit),
		Flow:    flow,
		LawName: lawName,
	}
}

// NewUnknownStoreError creates a RuntimeError for an unregistered store key.
func NewUnknownStoreError(key, lawName string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownStore,
		Message: fmt.Sprintf("no store registered for %s", key),
		LawName: lawName,
		Target:  key,
	}
}
