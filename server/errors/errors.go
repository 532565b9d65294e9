package errors

import (
	"errors"
	"log/slog"
	"strings"
)

var (
	// ErrDefinitionNotFound signifies that no process definition exists for the requested id.
	ErrDefinitionNotFound = errors.New("process definition not found")
	// ErrDefinitionInactive signifies that the requested process definition exists but is not active.
	ErrDefinitionInactive = errors.New("process definition is not active")
	// ErrInstanceNotFound signifies that no process instance exists for the requested id.
	ErrInstanceNotFound = errors.New("process instance not found")
	// ErrTaskNotFound signifies that no task exists for the requested id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrActorNotFound signifies that no actor exists for the requested id.
	ErrActorNotFound = errors.New("actor not found")
	// ErrNoDefinitionSteps signifies that a process definition contains no usable steps.
	ErrNoDefinitionSteps = errors.New("process definition contains no steps")
	// ErrDuplicateStepSequence signifies that a definition assigns the same sequence number to more than one step.
	ErrDuplicateStepSequence = errors.New("duplicate step sequence in definition")
	// ErrUpdateConflict signifies that an optimistic update exhausted its retries without success.
	ErrUpdateConflict = errors.New("update conflict: retries exhausted")
)

const (
	// TraceLevel is the slog level for trace messages.
	TraceLevel = slog.Level(-12)
	// VerboseLevel is the slog level for verbose messages.
	VerboseLevel = slog.Level(-8)
)

// ErrWorkflowFatal signifies that the workflow has experienced a fatal error and cannot proceed.
type ErrWorkflowFatal struct {
	Err error
}

// Error returns the string version of the error.
func (e *ErrWorkflowFatal) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *ErrWorkflowFatal) Unwrap() error {
	return e.Err
}

// IsWorkflowFatal returns true if the error is an ErrWorkflowFatal error.
func IsWorkflowFatal(err error) bool {
	var wff *ErrWorkflowFatal
	return errors.As(err, &wff)
}

// ErrInvalidStateTransition signifies that a lifecycle transition was requested
// that the state machine does not permit from the current state.
type ErrInvalidStateTransition struct {
	Current string
	Target  string
	Valid   []string
}

// Error returns the string version of the error.
func (e *ErrInvalidStateTransition) Error() string {
	valid := "none"
	if len(e.Valid) > 0 {
		valid = strings.Join(e.Valid, ", ")
	}
	return "invalid state transition from " + e.Current + " to " + e.Target + ", valid transitions: " + valid
}

// IsInvalidStateTransition returns true if the error is an ErrInvalidStateTransition error.
func IsInvalidStateTransition(err error) bool {
	var ist *ErrInvalidStateTransition
	return errors.As(err, &ist)
}
