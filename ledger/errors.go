/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Business-rule failures - terminal, reported verbatim to the caller,
     never retried, never defaulted (missing profile, insufficient balance,
     invalid refund).
  2. Infrastructure failures - transient, retried locally with bounded
     attempts and only then surfaced (version conflicts).
  3. Year-end failures - accumulated per employee and returned as a
     summary; one employee's failure never aborts the rest of the run.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrProfileNotFound is returned when no EmployeeLeaveProfile exists.
	// The caller must provision one first; this is never retried.
	ErrProfileNotFound = errors.New("employee leave profile not found")

	// ErrYearNotFound is returned when no snapshot exists for (employee, year).
	ErrYearNotFound = errors.New("leave year not found")

	// ErrYearExists is returned by CreateYear when the snapshot already
	// exists. Callers treat it as "someone else bootstrapped first".
	ErrYearExists = errors.New("leave year already exists")

	// ErrRuleNotFound is returned when a referenced accrual rule doesn't exist.
	ErrRuleNotFound = errors.New("accrual rule not found")

	// ErrInsufficientBalance is returned when a use exceeds the remaining
	// balance. Surfaced to the end user, never silently clamped.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrInvalidRefund is returned when a refund would push usage below zero.
	ErrInvalidRefund = errors.New("refund exceeds recorded usage")

	// ErrVersionConflict is the store-level optimistic-concurrency failure.
	// The engine retries it; callers normally never see it.
	ErrVersionConflict = errors.New("snapshot version conflict")

	// ErrConcurrentUpdateConflict is surfaced after the engine exhausts its
	// retry budget. Retryable by the caller.
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")

	// ErrInvalidTransaction is returned for malformed engine input (zero or
	// negative day counts, unknown category, missing actor on adjustments).
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortage for one category.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Year       int
	Category   Category
	Available  Days
	Requested  Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s in %d: available %s, requested %s",
		e.Category, e.EmployeeID, e.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidRefundError reports a refund that would make usage negative.
type InvalidRefundError struct {
	EmployeeID EmployeeID
	Year       int
	Category   Category
	Used       Days
	Requested  Days
}

func (e *InvalidRefundError) Error() string {
	return fmt.Sprintf("cannot refund %s %s days for %s in %d: only %s used",
		e.Requested, e.Category, e.EmployeeID, e.Year, e.Used)
}

func (e *InvalidRefundError) Unwrap() error { return ErrInvalidRefund }

// InvariantError reports a snapshot whose balance fields don't match the
// entitlements-minus-usage identity. Seeing one means something bypassed
// the transaction engine.
type InvariantError struct {
	EmployeeID EmployeeID
	Year       int
	Field      string
	Want       Days
	Got        Days
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("balance invariant violated for %s in %d: %s is %s, want %s",
		e.EmployeeID, e.Year, e.Field, e.Got, e.Want)
}

// ConflictError reports retry exhaustion on a contended snapshot.
type ConflictError struct {
	EmployeeID EmployeeID
	Year       int
	Attempts   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("gave up updating %s year %d after %d attempts", e.EmployeeID, e.Year, e.Attempts)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentUpdateConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrConcurrentUpdateConflict)
}

// IsClientError returns true if the error is the caller's fault rather
// than the system's.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidRefund) ||
		errors.Is(err, ErrInvalidTransaction)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrYearNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}
