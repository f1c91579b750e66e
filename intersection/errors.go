package intersection

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceInit is wrapped by every failure to set up an intersection.
	// No worker is started once it has been returned.
	ErrResourceInit = errors.New("resource initialization failed")

	// ErrDeadlock is reported by Stress when a run does not finish in time.
	ErrDeadlock = errors.New("simulation did not finish in time")
)

// InitError describes which part of the intersection could not be set up.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("resource initialization failed in %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() []error {
	return []error{ErrResourceInit, e.Err}
}
