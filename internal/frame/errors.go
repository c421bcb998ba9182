package frame

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for frame configuration and stepping.
var (
	// ErrDuplicateName indicates a name collision within a group.
	ErrDuplicateName = errors.New("frame: duplicate name in group")

	// ErrNotFound indicates a dotted path that resolves to nothing.
	ErrNotFound = errors.New("frame: no such field or group")

	// ErrShapeMismatch indicates a value whose shape differs from the
	// field's established shape.
	ErrShapeMismatch = errors.New("frame: value shape mismatch")

	// ErrConstant indicates a write to a constant field.
	ErrConstant = errors.New("frame: field is constant")

	// ErrCycle indicates a cyclic dependency declaration.
	ErrCycle = errors.New("frame: dependency cycle")

	// ErrMaxRetries indicates an adaptive step exceeded its retry budget.
	ErrMaxRetries = errors.New("frame: step retry limit exceeded")

	// ErrStepTooSmall indicates the step size shrank below the minimum.
	ErrStepTooSmall = errors.New("frame: step size below minimum")

	// ErrBusy indicates a reentrant Step call.
	ErrBusy = errors.New("frame: step already in progress")

	// ErrBadBinding indicates an integration binding whose derivative does
	// not match the bound field.
	ErrBadBinding = errors.New("frame: invalid integration binding")
)

// CycleError reports the members of a dependency cycle by dotted path.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("frame: dependency cycle: %s", strings.Join(e.Members, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// StepError wraps a fatal step failure with enough context to diagnose it:
// the field and scheme involved, the independent variable, and the step size
// at the time of failure.
type StepError struct {
	Field   string
	Scheme  string
	X       float64
	H       float64
	Wrapped error
}

func (e *StepError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("step failed at x=%.6g (h=%.6g): %v", e.X, e.H, e.Wrapped)
	}
	return fmt.Sprintf("step failed for %s (%s) at x=%.6g (h=%.6g): %v", e.Field, e.Scheme, e.X, e.H, e.Wrapped)
}

func (e *StepError) Unwrap() error { return e.Wrapped }

// UpdateError wraps an updater failure with the field it occurred on.
// Fields updated earlier in the same pass keep their new values.
type UpdateError struct {
	Field   string
	Wrapped error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update of %s failed: %v", e.Field, e.Wrapped)
}

func (e *UpdateError) Unwrap() error { return e.Wrapped }
