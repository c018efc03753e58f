package heuristic

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition marks malformed input rejected before any solver call.
	ErrPrecondition = errors.New("precondition violation")
	// ErrInconsistentAggregation means grouping lost or duplicated pallets.
	// It always indicates a defect.
	ErrInconsistentAggregation = errors.New("inconsistent aggregation")
)

// PreconditionError names the offending input. It matches ErrPrecondition
// and, when set, the underlying cause.
type PreconditionError struct {
	Field  string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	msg := ErrPrecondition.Error() + ": " + e.Field
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PreconditionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPrecondition, e.Err}
	}
	return []error{ErrPrecondition}
}

func precondition(field, format string, args ...any) error {
	return &PreconditionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
