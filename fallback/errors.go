package fallback

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoMatch matches any *NoMatchError through errors.Is.
var ErrNoMatch = errors.New("fallback: no match")

// NoMatchError reports a variant that located nothing on the live screen.
type NoMatchError struct {
	Variant string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("fallback: variant %s: no matching node", e.Variant)
}

func (e *NoMatchError) Is(target error) bool { return target == ErrNoMatch }

// BudgetExceededError reports an exhausted time budget. Scope is "total"
// for the plan or "candidate" for a single attempt.
type BudgetExceededError struct {
	Scope   string
	Budget  time.Duration
	Elapsed time.Duration
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("fallback: %s budget %s exceeded after %s", e.Scope, e.Budget, e.Elapsed)
}

// TapError wraps an executor failure.
type TapError struct {
	X, Y  int
	Cause error
}

func (e *TapError) Error() string {
	return fmt.Sprintf("fallback: tap (%d,%d): %v", e.X, e.Y, e.Cause)
}

func (e *TapError) Unwrap() error { return e.Cause }
