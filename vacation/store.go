/*
store.go - Persistence interfaces for the vacation engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  EmployeeStore:     Read-only reference data lookups
  BalanceStore:      Leave pool with atomic reserve/release
  RequestStore:      Request persistence with compare-and-set transitions
  NotificationStore: Deduplicated notification inserts

ATOMICITY CONTRACT:
  Reserve() is a single atomic check-and-decrement per employee. Two
  concurrent reservations must serialize; both may not succeed when
  their combined days exceed the remaining balance.

  TransitionStatus() is a compare-and-set guarded on the status AND the
  date range the decision was read against. A double-approve race, or an
  owner reschedule landing mid-decision, loses the CAS and reports
  false.

  CreateNotification() inserts at most once per
  (recipient, request, type) and reports whether the row was created.
  This is what makes the notification sweep idempotent.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite (conditional writes inside DB txs)
  - store/memory: In-memory for testing/dev (mutex-guarded)

SEE ALSO:
  - ledger.go: Higher-level balance contract using BalanceStore
  - lifecycle.go: State machine using RequestStore + BalanceStore
*/
package vacation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

// EmployeeStore provides employee reference data. The core never mutates
// employees except through SaveEmployee, which exists for seeding and for
// the identity subsystem's use.
type EmployeeStore interface {
	// GetEmployee returns the employee or a NotFoundError.
	GetEmployee(ctx context.Context, id string) (*Employee, error)

	ListEmployees(ctx context.Context) ([]Employee, error)

	// ListByManager returns the direct reports of a manager.
	ListByManager(ctx context.Context, managerID string) ([]Employee, error)

	// ListByRole returns all employees with the given role.
	ListByRole(ctx context.Context, role Role) ([]Employee, error)

	SaveEmployee(ctx context.Context, e Employee) error
}

// =============================================================================
// BALANCE STORE - The single shared mutable resource
// =============================================================================

// BalanceStore persists per-employee leave pools. Reserve and Release are
// the ONLY consumed-day mutations; no raw read-modify-write is exposed.
type BalanceStore interface {
	// GetBalance returns the employee's balance or a NotFoundError.
	GetBalance(ctx context.Context, employeeID string) (*LeaveBalance, error)

	// SetAllocation sets the allocated pool for the period (seeding /
	// period rollover). Creates the balance row if absent.
	SetAllocation(ctx context.Context, employeeID string, allocated decimal.Decimal) error

	// Reserve atomically checks days <= remaining and increments consumed.
	// Returns the new remaining balance, or an InsufficientBalanceError
	// leaving the balance untouched.
	Reserve(ctx context.Context, employeeID string, days decimal.Decimal) (decimal.Decimal, error)

	// Release decrements consumed. If the decrement would drive consumed
	// negative the store clamps to zero and reports clamped=true so the
	// caller can flag the integrity warning.
	Release(ctx context.Context, employeeID string, days decimal.Decimal) (clamped bool, err error)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

// DecisionGuard pins the snapshot a decision was read against. The
// transition only commits while the request still matches it, so the
// day count a decision charged is always the day count it stored.
type DecisionGuard struct {
	Status RequestStatus
	Start  Date
	End    Date
}

// RequestStore persists vacation requests. Requests are never deleted;
// terminal states are retained for audit and export.
type RequestStore interface {
	// CreateRequest assigns a monotonic ID and CreatedAt, then persists.
	CreateRequest(ctx context.Context, r *VacationRequest) error

	// GetRequest returns the request or a NotFoundError.
	GetRequest(ctx context.Context, id int64) (*VacationRequest, error)

	// UpdateDates rewrites the date range of a request that is still
	// pending. Returns false (no error) when the request was decided
	// concurrently and the guard failed.
	UpdateDates(ctx context.Context, id int64, start, end Date) (bool, error)

	// TransitionStatus is a compare-and-set: it moves the request to
	// 'to' and records the decision, but only while the row still
	// matches the guard. Returns false when the guard no longer holds.
	TransitionStatus(ctx context.Context, id int64, guard DecisionGuard, to RequestStatus, decidedBy string, decidedAt time.Time) (bool, error)

	// SetConfirmed flags an approved request as acknowledged by its owner.
	SetConfirmed(ctx context.Context, id int64) error

	ListByEmployee(ctx context.Context, employeeID string) ([]VacationRequest, error)
	ListByStatus(ctx context.Context, status RequestStatus) ([]VacationRequest, error)
	ListAll(ctx context.Context) ([]VacationRequest, error)
}

// =============================================================================
// NOTIFICATION STORE
// =============================================================================

// NotificationStore persists notifications. Inserts are deduplicated on
// (recipient, related request, type); the only mutation is mark-read.
type NotificationStore interface {
	// CreateNotification inserts unless a notification with the same
	// (RecipientID, RelatedRequestID, Type) already exists. Reports
	// whether a row was created.
	CreateNotification(ctx context.Context, n Notification) (created bool, err error)

	// GetNotification returns the notification or a NotFoundError.
	GetNotification(ctx context.Context, id string) (*Notification, error)

	MarkRead(ctx context.Context, id string) error

	ListByRecipient(ctx context.Context, recipientID string) ([]Notification, error)

	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store is the full persistence surface the engine is wired against.
type Store interface {
	EmployeeStore
	BalanceStore
	RequestStore
	NotificationStore
}
