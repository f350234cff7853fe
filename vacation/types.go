/*
Package vacation implements the vacation request lifecycle and balance
reconciliation engine.

PURPOSE:
  This package contains the domain model and algorithms for managing
  employee vacation requests: the request state machine, the leave
  balance ledger it mutates, the reminder notification sweep, and the
  role-scoped view projections.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date/DateRange: Calendar dates with whole-day arithmetic (no time
    of day, no timezone math beyond day counting)
  - Employee: Read-only reference data owned by the identity subsystem
  - VacationRequest: The lifecycle entity (pending -> approved/rejected)
  - LeaveBalance: Allocated/consumed days, remaining always >= 0
  - Notification: Reminder/event records, deduplicated per
    (recipient, request, type)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for day amounts to avoid
     floating-point errors (and to leave room for half days later)
  2. Inclusive ranges: days = end - start + 1, both endpoints count
  3. Terminal states are retained: requests are never deleted

SEE ALSO:
  - ledger.go: Balance ledger (atomic reserve/release)
  - lifecycle.go: Request state machine
  - notify.go: Notification sweep and mark-read
  - views.go: Role-scoped projections
*/
package vacation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATES - Whole calendar days, UTC-normalized
// =============================================================================

// Date is a calendar date with day granularity. The time-of-day component
// is always midnight UTC.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not a valid date (expected YYYY-MM-DD)", ErrInvalidRange, s)
	}
	return Date{Time: t}, nil
}

func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from 'from' to 'to'.
// Negative when 'to' is in the past relative to 'from'.
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// DateRange is an inclusive calendar date range.
type DateRange struct {
	Start Date
	End   Date
}

// Validate checks the range is well-formed: both endpoints set and
// End >= Start. Returns an error wrapping ErrInvalidRange otherwise.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, r.End, r.Start)
	}
	return nil
}

// Days returns the inclusive day count (end - start + 1).
func (r DateRange) Days() int {
	return DaysBetween(r.Start, r.End) + 1
}

// ClipToYear intersects the range with [Jan 1, Dec 31] of the given year.
// The second return value is false when there is no overlap.
func (r DateRange) ClipToYear(year int) (DateRange, bool) {
	yearStart := NewDate(year, time.January, 1)
	yearEnd := NewDate(year, time.December, 31)
	clipped := r
	if clipped.Start.Before(yearStart) {
		clipped.Start = yearStart
	}
	if clipped.End.After(yearEnd) {
		clipped.End = yearEnd
	}
	if clipped.End.Before(clipped.Start) {
		return DateRange{}, false
	}
	return clipped, true
}

func (r DateRange) String() string { return r.Start.String() + ".." + r.End.String() }

// =============================================================================
// EMPLOYEES - Reference data (owned by the identity subsystem)
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
)

// Employee is read-only reference data as far as the core is concerned.
// The identity subsystem owns creation and profile updates.
type Employee struct {
	ID         string
	Username   string
	FirstName  string
	LastName   string
	Role       Role
	Department string
	ManagerID  *string
	CreatedAt  time.Time
}

func (e Employee) DisplayName() string {
	if e.FirstName == "" && e.LastName == "" {
		return e.Username
	}
	return e.FirstName + " " + e.LastName
}

// =============================================================================
// LEAVE BALANCE - Single leave pool per employee
// =============================================================================

// LeaveBalance tracks one employee's leave pool for the period.
// Remaining is always derived; it is never stored separately where it
// could drift out of sync.
type LeaveBalance struct {
	EmployeeID string
	Allocated  decimal.Decimal
	Consumed   decimal.Decimal
}

func (b LeaveBalance) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Consumed)
}

// Days converts a whole-day count to a ledger amount.
func Days(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// =============================================================================
// VACATION REQUEST - The lifecycle entity
// =============================================================================

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// VacationRequest is a single request travelling through the approval
// pipeline. IDs are assigned monotonically by the store. Requests are
// never physically deleted; terminal states are retained for audit.
type VacationRequest struct {
	ID         int64
	EmployeeID string
	StartDate  Date
	EndDate    Date
	Status     RequestStatus

	// Only meaningful when Status == approved.
	ConfirmedByEmployee bool

	CreatedAt time.Time

	// Set if and only if Status is approved or rejected.
	DecidedBy *string
	DecidedAt *time.Time
}

func (r *VacationRequest) Range() DateRange {
	return DateRange{Start: r.StartDate, End: r.EndDate}
}

// Days is the inclusive day count reserved against the ledger at approval.
func (r *VacationRequest) Days() int { return r.Range().Days() }

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationType string

const (
	// Sweep-generated reminders.
	NotifyReminder14d NotificationType = "vacation_reminder_14d"
	NotifyStartToday  NotificationType = "vacation_start_today"

	// Decision/event notifications emitted by the state machine.
	NotifyRequestApproved    NotificationType = "request_approved"
	NotifyRequestRejected    NotificationType = "request_rejected"
	NotifyRequestRescheduled NotificationType = "request_rescheduled"
)

// Notification is created at most once per (recipient, request, type).
// The only mutation ever applied is marking it read.
type Notification struct {
	ID               string
	RecipientID      string
	Type             NotificationType
	RelatedRequestID int64
	CreatedAt        time.Time
	Read             bool
}
