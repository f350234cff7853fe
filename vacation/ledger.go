/*
ledger.go - Leave balance ledger

PURPOSE:
  The Ledger is the single source of truth for leave availability.
  Every reservation and release goes through here; callers never see a
  raw read-modify-write on the balance.

CRITICAL INVARIANTS:
  1. remaining = allocated - consumed, always >= 0
  2. Reserve is atomic: check-and-decrement in one step, so two
     concurrent approvals cannot jointly overdraw the pool
  3. Release never pushes remaining above allocated; if it would, the
     store clamps and the ledger surfaces an IntegrityError

RESERVATION TIMING:
  Days are reserved at APPROVAL, not at creation. Creation and edit use
  CheckAvailable as an advisory pre-check only; overlapping pending
  requests therefore do not double-reserve, and the approval-time
  Reserve is the authoritative check.

STALENESS:
  Any balance snapshot returned by GetBalance may be stale the moment it
  is returned. Refresh via GetBalance; never assume a cached snapshot is
  consistent with the ledger between calls.

SEE ALSO:
  - store.go: BalanceStore atomicity contract
  - lifecycle.go: The only caller of Reserve/Release
*/
package vacation

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// Ledger wraps a BalanceStore with domain validation and integrity
// flagging. All balance math is decimal to keep day counts exact.
type Ledger struct {
	store BalanceStore
}

func NewLedger(store BalanceStore) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns the current pool for a known employee.
// Unknown employees are a NotFoundError.
func (l *Ledger) GetBalance(ctx context.Context, employeeID string) (*LeaveBalance, error) {
	return l.store.GetBalance(ctx, employeeID)
}

// CheckAvailable is the advisory pre-check used at request creation and
// edit. It reads the balance and fails with InsufficientBalanceError if
// days exceed remaining. The balance may change before approval; the
// authoritative check is Reserve.
func (l *Ledger) CheckAvailable(ctx context.Context, employeeID string, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: day count must be positive, got %d", ErrInvalidRange, days)
	}
	balance, err := l.store.GetBalance(ctx, employeeID)
	if err != nil {
		return err
	}
	requested := Days(days)
	if requested.GreaterThan(balance.Remaining()) {
		return &InsufficientBalanceError{
			EmployeeID: employeeID,
			Requested:  requested,
			Remaining:  balance.Remaining(),
		}
	}
	return nil
}

// Reserve decrements remaining by days, atomically with respect to
// concurrent reservations for the same employee. Returns the new
// remaining balance or an InsufficientBalanceError.
func (l *Ledger) Reserve(ctx context.Context, employeeID string, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, fmt.Errorf("%w: day count must be positive, got %d", ErrInvalidRange, days)
	}
	return l.store.Reserve(ctx, employeeID, Days(days))
}

// Release returns days to the pool (rejection of a reservation, or a
// reversal path). Remaining must not exceed allocated afterwards; the
// store clamps if it would and the ledger flags the integrity warning.
// Should never trigger under correct usage.
func (l *Ledger) Release(ctx context.Context, employeeID string, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: day count must be positive, got %d", ErrInvalidRange, days)
	}
	clamped, err := l.store.Release(ctx, employeeID, Days(days))
	if err != nil {
		return err
	}
	if clamped {
		log.Printf("[Ledger] release of %d days for %s clamped at zero consumed", days, employeeID)
		return &IntegrityError{
			EmployeeID: employeeID,
			Detail:     fmt.Sprintf("release of %d days exceeded consumed total; clamped", days),
		}
	}
	return nil
}
