package sequencer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedDependency is returned when a step references a step that
	// does not exist or has not produced a deployed address.
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	// ErrCyclicDependency is returned when a step references itself or a later step.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrDeploymentFailed is returned when the backend rejects a deployment.
	ErrDeploymentFailed = errors.New("deployment failed")
	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step")
	// ErrInvalidStep is returned for structurally invalid steps.
	ErrInvalidStep = errors.New("invalid step")
	// ErrNotLibrary is returned when a step links against a non-library step.
	ErrNotLibrary = errors.New("linked step is not a library")
)

// StepError reports a validation failure for one step.
type StepError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *StepError) Unwrap() error {
	return e.Err
}

// SessionError reports an aborted session. Results holds everything recorded
// before the abort: earlier steps Deployed, the failing step Failed.
type SessionError struct {
	Step    string
	Err     error
	Results Results
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session aborted at step %q: %v", e.Step, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// PartialResults extracts the results accumulated before a session aborted.
// It returns nil if err does not carry any.
func PartialResults(err error) Results {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Results
	}
	return nil
}
