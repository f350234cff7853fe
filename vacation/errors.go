/*
errors.go - Centralized error taxonomy for the vacation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is/errors.As; the HTTP layer
  maps classes to status codes without inspecting messages.

ERROR CATEGORIES:
  1. Domain errors - Business rule violations (terminal, do not retry)
  2. Integrity errors - Invariant violations (defensive, logged and surfaced)
  3. Store errors - Transient persistence failures (safe to retry with backoff)

USAGE:
  if errors.Is(err, vacation.ErrInsufficientBalance) {
      // report shortfall to the user; the request stayed pending
  }

SEE ALSO:
  - ledger.go: Raises insufficient-balance and integrity errors
  - lifecycle.go: Raises invalid-state and authorization errors
*/
package vacation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned for malformed or inverted date ranges.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInsufficientBalance is returned when requested days exceed the
	// remaining balance. Raised at creation (advisory) and re-checked at
	// approval (authoritative).
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidState is returned when a transition is attempted from a
	// state that does not permit it (e.g. approving a rejected request).
	ErrInvalidState = errors.New("invalid request state")

	// ErrNotFound is returned for unknown employee/request/notification ids.
	ErrNotFound = errors.New("not found")

	// ErrAuthorization is returned when the actor lacks the role or
	// ownership required for the action.
	ErrAuthorization = errors.New("not authorized")

	// ErrIntegrity marks a ledger/request invariant violation. Defensive;
	// should be unreachable under correct usage.
	ErrIntegrity = errors.New("integrity violation")

	// ErrStoreUnavailable marks a transient persistence failure. Unlike the
	// domain errors above it is safe to retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortfall.
type InsufficientBalanceError struct {
	EmployeeID string
	Requested  decimal.Decimal
	Remaining  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: requested %s days, %s remaining",
		e.EmployeeID, e.Requested, e.Remaining)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidStateError reports a transition attempted from the wrong state.
type InvalidStateError struct {
	RequestID int64
	Status    RequestStatus
	Action    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s request %d in status %q", e.Action, e.RequestID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Kind string // "employee", "request", "notification", "balance"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AuthorizationError reports an actor lacking role or ownership.
type AuthorizationError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s may not %s: %s", e.ActorID, e.Action, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// IntegrityError reports a violated invariant. The offending write is
// clamped/refused before this is returned, so state remains consistent.
type IntegrityError struct {
	EmployeeID string
	Detail     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation for %s: %s", e.EmployeeID, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid client input
// or a state the client can observe and react to.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAuthorization)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
