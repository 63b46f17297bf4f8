package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every operation that returns one of these has left the
// workflow and its history untouched.
var (
	ErrUnknownStep        = errors.New("unknown step")
	ErrRequirementsNotMet = errors.New("requirements not met")
	ErrValidationFailed   = errors.New("validation failed")
	ErrNotSkippable       = errors.New("step is not optional")
	ErrStepClosed         = errors.New("step already finished")
	ErrBusy               = errors.New("operation already in progress for step")
	ErrMultipleActive     = errors.New("more than one active step")
)

// RequirementsError names the requirements that blocked a transition.
type RequirementsError struct {
	StepID  string
	Missing []string // titles of the requirements not yet completed
}

func (e *RequirementsError) Error() string {
	return fmt.Sprintf("cannot start %q: complete %s first", e.StepID, strings.Join(e.Missing, ", "))
}

func (e *RequirementsError) Unwrap() error { return ErrRequirementsNotMet }

// ValidationFailedError carries the full list of failed rule messages.
type ValidationFailedError struct {
	StepID   string
	Messages []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("step %q failed validation: %s", e.StepID, strings.Join(e.Messages, "; "))
}

func (e *ValidationFailedError) Unwrap() error { return ErrValidationFailed }
