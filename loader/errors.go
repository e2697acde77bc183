package loader

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/ctxload/resource"
)

// Sentinel errors for load operations.
var (
	// ErrResourceUnavailable indicates a mandatory resource could not be read.
	ErrResourceUnavailable = resource.ErrUnavailable

	// ErrBudgetExceeded indicates a mandatory resource does not fit and
	// truncation was not allowed.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrClosed indicates the loader has been closed.
	ErrClosed = errors.New("loader is closed")
)

// ResourceError reports a mandatory resource that could not be read.
type ResourceError struct {
	Location string // Location that failed
	Err      error  // Underlying reader error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("mandatory resource %s unavailable: %v", e.Location, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Is matches ErrResourceUnavailable even when the reader did not wrap it.
func (e *ResourceError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// BudgetError reports a mandatory resource that would overflow the budget.
type BudgetError struct {
	Location  string // Offending resource
	Tokens    int    // Its token count
	Remaining int    // Budget left when it was reached
	Budget    int    // Effective budget of the load
}

// Error implements the error interface.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s: mandatory resource %s needs %d tokens but only %d of %d remain",
		ErrBudgetExceeded, e.Location, e.Tokens, e.Remaining, e.Budget)
}

// Is matches ErrBudgetExceeded.
func (e *BudgetError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
