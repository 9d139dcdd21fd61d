package models

import (
	"errors"
	"fmt"
)

// ErrPrecondition is matched by every PreconditionError.
var ErrPrecondition = errors.New("precondition violated")

// PreconditionError reports input that is well-formed but breaks a documented
// precondition, such as an interval ending before it starts. Such input is
// rejected, never corrected.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated for %s: %s", e.Field, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}
