package increment

import (
	"errors"
	"fmt"
)

// CycleError is returned when a Panic-strategy query participates in a
// cycle. It is fatal: it unwinds the current Fetch and propagates through
// waiters as Panicked.
type CycleError struct {
	// Key is the query that detected the cycle.
	Key DatabaseKeyIndex
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("increment: query %s has no cycle recovery strategy but participates in a cycle", e.Key)
}

// IterationOverflowError is returned when fixpoint iteration fails to
// converge within the Database's iteration limit (WithMaxCycleIterations,
// default 200).
type IterationOverflowError struct {
	Key        DatabaseKeyIndex
	Iterations int
}

func (e *IterationOverflowError) Error() string {
	return fmt.Sprintf("increment: query %s did not converge after %d fixpoint iterations", e.Key, e.Iterations)
}

// RevisionCancelledError is returned when a reader unwinds because a writer
// advanced the revision while the reader was active. This is expected, not
// an implementation error.
type RevisionCancelledError struct {
	Key DatabaseKeyIndex
}

func (e *RevisionCancelledError) Error() string {
	return fmt.Sprintf("increment: fetch of %s cancelled by a concurrent revision write", e.Key)
}

// AssertionViolationError signals an internal invariant was violated (e.g.
// a missing provisional memo where one was expected). Always a bug in the
// core or an Ingredient implementation, never user-facing input.
type AssertionViolationError struct {
	Message string
	Cause   error
}

func (e *AssertionViolationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("increment: assertion violated: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("increment: assertion violated: %s", e.Message)
}

func (e *AssertionViolationError) Unwrap() error { return e.Cause }

// PanickedError is returned to a waiter whose blocker released its claim
// with Panicked: the blocker's computation failed fatally, and the fatal
// state fans out along the wait-for graph rather than surfacing at an
// arbitrary query boundary.
type PanickedError struct {
	// Key is the query whose computation panicked on another thread.
	Key DatabaseKeyIndex
}

func (e *PanickedError) Error() string {
	return fmt.Sprintf("increment: query %s failed fatally on the computing thread", e.Key)
}

// IsFatal reports whether err represents one of the fatal error kinds that
// poisons a claim and fans out to waiters as Panicked, as opposed to
// RevisionCancelledError, which is expected control flow.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cycleErr *CycleError
	var overflowErr *IterationOverflowError
	var assertErr *AssertionViolationError
	var panickedErr *PanickedError
	return errors.As(err, &cycleErr) || errors.As(err, &overflowErr) ||
		errors.As(err, &assertErr) || errors.As(err, &panickedErr)
}
