package dynamics

import (
	"errors"
	"fmt"
)

// Domain errors for world operations.
var (
	// ErrBodyNotFound indicates a stale or unknown body handle.
	ErrBodyNotFound = errors.New("dynamics: body not found")

	// ErrShapeNotFound indicates an unknown shape id.
	ErrShapeNotFound = errors.New("dynamics: shape not found")

	// ErrConstraintNotFound indicates a stale or unknown constraint handle.
	ErrConstraintNotFound = errors.New("dynamics: constraint not found")

	// ErrNullBody is returned when the static null body would be modified.
	ErrNullBody = errors.New("dynamics: the null body cannot be modified")

	// ErrInvalidTimestep indicates a non-positive or non-finite dt.
	ErrInvalidTimestep = errors.New("dynamics: invalid timestep")

	// ErrStepInProgress is returned when Step is entered twice.
	ErrStepInProgress = errors.New("dynamics: step already in progress")

	// ErrInvalidConfig indicates a configuration value outside its range.
	ErrInvalidConfig = errors.New("dynamics: invalid configuration")

	// ErrNonFiniteState indicates a body position or velocity became NaN or Inf.
	ErrNonFiniteState = errors.New("dynamics: state diverged (NaN or Inf detected)")
)

// StepError wraps an error with the step it happened in.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
