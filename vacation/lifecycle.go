/*
lifecycle.go - Vacation request state machine

PURPOSE:
  Owns the lifecycle of a request and the legality of each transition:

    pending --approve--> approved --(confirm flag)-->
    pending --reject---> rejected

  Both approved and rejected are terminal for status. Pending requests
  may be edited (date range changed) while remaining pending.

LEDGER INTERACTION:
  - create/edit: advisory balance pre-check only, nothing reserved
  - approve:     Reserve(days) is the authoritative check; if it fails
                 the approval fails and the request remains pending
  - reject:      no ledger effect (nothing was reserved yet)

CONCURRENCY:
  Status transitions are compare-and-set on the snapshot the decision
  was read against: status AND date range. Approval reserves first, then
  attempts the CAS; if the CAS loses (the request was decided, or
  rescheduled by its owner, between the read and the write) the
  reservation is released. Net effect: at most one decision wins and
  consumed days always equal the sum of approved requests' day counts.

AUTHORIZATION:
  Role/ownership checks are enforced here, not assumed pre-checked by
  callers: owners edit/confirm their own requests, the requesting
  employee's manager approves/rejects.

NOTIFICATIONS:
  Decisions notify the request owner (request_approved/request_rejected)
  and edits notify the owner's manager (request_rescheduled). These are
  best-effort: a notification failure is logged, never rolls back a
  decision. The 14-day and start-today reminders are NOT emitted here -
  they come from the periodic sweep in notify.go.

SEE ALSO:
  - ledger.go: Reserve/Release contract
  - notify.go: Reminder sweep
  - views.go: Read-only projections of the request store
*/
package vacation

import (
	"context"
	"log"
	"time"
)

// Service is the request state machine. All role-scoped mutating actions
// (create/edit/approve/reject/confirm) enter through here.
type Service struct {
	store  Store
	ledger *Ledger

	// Injectable clock for tests.
	now func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store:  store,
		ledger: NewLedger(store),
		now:    time.Now,
	}
}

// Ledger exposes the balance ledger for read access (views, handlers).
func (s *Service) Ledger() *Ledger { return s.ledger }

// =============================================================================
// CREATE / EDIT
// =============================================================================

// Create validates the range, runs the advisory balance pre-check and
// produces a new pending request. Nothing is reserved yet; the balance
// is re-validated at approval since it may have changed.
func (s *Service) Create(ctx context.Context, employeeID string, start, end Date) (*VacationRequest, error) {
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	rng := DateRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if err := s.ledger.CheckAvailable(ctx, employeeID, rng.Days()); err != nil {
		return nil, err
	}

	req := &VacationRequest{
		EmployeeID:          employeeID,
		StartDate:           start,
		EndDate:             end,
		Status:              StatusPending,
		ConfirmedByEmployee: false,
		CreatedAt:           s.now(),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Edit changes the date range of a request that is still pending and
// owned by the actor. Range and balance are re-validated exactly as in
// Create. The owner's manager is notified of the reschedule.
func (s *Service) Edit(ctx context.Context, requestID int64, actorID string, newStart, newEnd Date) (*VacationRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.EmployeeID != actorID {
		return nil, &AuthorizationError{ActorID: actorID, Action: "edit", Reason: "not the request owner"}
	}
	if req.Status != StatusPending {
		return nil, &InvalidStateError{RequestID: requestID, Status: req.Status, Action: "edit"}
	}

	rng := DateRange{Start: newStart, End: newEnd}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if err := s.ledger.CheckAvailable(ctx, req.EmployeeID, rng.Days()); err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateDates(ctx, requestID, newStart, newEnd)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Decided concurrently between our read and the guarded write.
		return nil, &InvalidStateError{RequestID: requestID, Status: req.Status, Action: "edit"}
	}

	req.StartDate = newStart
	req.EndDate = newEnd

	if owner, err := s.store.GetEmployee(ctx, req.EmployeeID); err == nil && owner.ManagerID != nil {
		s.notify(ctx, *owner.ManagerID, NotifyRequestRescheduled, requestID)
	}
	return req, nil
}

// =============================================================================
// APPROVE / REJECT / CONFIRM
// =============================================================================

// Approve moves a pending request to approved, reserving its days.
// The balance is authoritative at decision time: an insufficient balance
// fails the approval and leaves the request pending and the ledger
// unchanged.
func (s *Service) Approve(ctx context.Context, requestID int64, managerID string) (*VacationRequest, error) {
	req, err := s.authorizeDecision(ctx, requestID, managerID, "approve")
	if err != nil {
		return nil, err
	}

	days := req.Days()
	if _, err := s.ledger.Reserve(ctx, req.EmployeeID, days); err != nil {
		return nil, err
	}

	decidedAt := s.now()
	guard := DecisionGuard{Status: StatusPending, Start: req.StartDate, End: req.EndDate}
	ok, err := s.store.TransitionStatus(ctx, requestID, guard, StatusApproved, managerID, decidedAt)
	if err != nil || !ok {
		// The request was decided or rescheduled concurrently (or the
		// write failed after the reservation). Give the days back before
		// reporting.
		if relErr := s.ledger.Release(ctx, req.EmployeeID, days); relErr != nil {
			log.Printf("[Lifecycle] failed to release %d days for %s after lost approve: %v",
				days, req.EmployeeID, relErr)
		}
		if err != nil {
			return nil, err
		}
		return nil, &InvalidStateError{RequestID: requestID, Status: req.Status, Action: "approve"}
	}

	req.Status = StatusApproved
	req.ConfirmedByEmployee = false
	req.DecidedBy = &managerID
	req.DecidedAt = &decidedAt

	s.notify(ctx, req.EmployeeID, NotifyRequestApproved, requestID)
	return req, nil
}

// Reject moves a pending request to rejected. No ledger effect: nothing
// was reserved at creation.
func (s *Service) Reject(ctx context.Context, requestID int64, managerID string) (*VacationRequest, error) {
	req, err := s.authorizeDecision(ctx, requestID, managerID, "reject")
	if err != nil {
		return nil, err
	}

	decidedAt := s.now()
	guard := DecisionGuard{Status: StatusPending, Start: req.StartDate, End: req.EndDate}
	ok, err := s.store.TransitionStatus(ctx, requestID, guard, StatusRejected, managerID, decidedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidStateError{RequestID: requestID, Status: req.Status, Action: "reject"}
	}

	req.Status = StatusRejected
	req.DecidedBy = &managerID
	req.DecidedAt = &decidedAt

	s.notify(ctx, req.EmployeeID, NotifyRequestRejected, requestID)
	return req, nil
}

// Confirm sets the employee acknowledgment flag on an approved request.
// Idempotent: confirming an already-confirmed request is a no-op.
func (s *Service) Confirm(ctx context.Context, requestID int64, employeeID string) (*VacationRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.EmployeeID != employeeID {
		return nil, &AuthorizationError{ActorID: employeeID, Action: "confirm", Reason: "not the request owner"}
	}
	if req.Status != StatusApproved {
		return nil, &InvalidStateError{RequestID: requestID, Status: req.Status, Action: "confirm"}
	}
	if req.ConfirmedByEmployee {
		return req, nil
	}
	if err := s.store.SetConfirmed(ctx, requestID); err != nil {
		return nil, err
	}
	req.ConfirmedByEmployee = true
	return req, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// authorizeDecision checks that the actor is a manager, manages the
// requesting employee, and that the request is still pending.
func (s *Service) authorizeDecision(ctx context.Context, requestID int64, managerID, action string) (*VacationRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	manager, err := s.store.GetEmployee(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if manager.Role != RoleManager {
		return nil, &AuthorizationError{ActorID: managerID, Action: action, Reason: "actor is not a manager"}
	}

	owner, err := s.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	if owner.ManagerID == nil || *owner.ManagerID != managerID {
		return nil, &AuthorizationError{ActorID: managerID, Action: action, Reason: "employee reports to a different manager"}
	}

	if req.Status != StatusPending {
		return nil, &InvalidStateError{RequestID: requestID, Status: req.Status, Action: action}
	}
	return req, nil
}

// notify creates a decision/event notification. Best-effort: failures
// are logged and never fail the transition that triggered them.
func (s *Service) notify(ctx context.Context, recipientID string, typ NotificationType, requestID int64) {
	_, err := s.store.CreateNotification(ctx, newNotification(recipientID, typ, requestID, s.now()))
	if err != nil {
		log.Printf("[Lifecycle] failed to notify %s (%s, request %d): %v", recipientID, typ, requestID, err)
	}
}
