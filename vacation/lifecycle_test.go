package vacation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestService builds a service over a fresh in-memory store seeded
// with a small org chart: one manager (mgr-1) with two reports
// (emp-1, emp-2), one unrelated manager (mgr-2) and one HR user (hr-1).
// Everyone gets 20 allocated days.
func newTestService(t *testing.T) (*vacation.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	managerID := "mgr-1"
	people := []vacation.Employee{
		{ID: "mgr-1", Username: "maria", FirstName: "Maria", LastName: "Keller", Role: vacation.RoleManager},
		{ID: "mgr-2", Username: "oskar", FirstName: "Oskar", LastName: "Lang", Role: vacation.RoleManager},
		{ID: "emp-1", Username: "jonas", FirstName: "Jonas", LastName: "Brandt", Role: vacation.RoleEmployee, ManagerID: &managerID},
		{ID: "emp-2", Username: "petra", FirstName: "Petra", LastName: "Sommer", Role: vacation.RoleEmployee, ManagerID: &managerID},
		{ID: "hr-1", Username: "lena", FirstName: "Lena", LastName: "Vogt", Role: vacation.RoleHR},
	}
	for _, e := range people {
		require.NoError(t, store.SaveEmployee(ctx, e))
		require.NoError(t, store.SetAllocation(ctx, e.ID, vacation.Days(20)))
	}

	return vacation.NewService(store), store
}

func date(y, m, d int) vacation.Date {
	return vacation.NewDate(y, time.Month(m), d)
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_PendingWithBalanceUntouched(t *testing.T) {
	// GIVEN: emp-1 has 20 allocated days
	// WHEN: Requesting a 10-day range (inclusive endpoints)
	// THEN: Request is pending and nothing is reserved yet

	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusPending, req.Status)
	assert.Equal(t, 10, req.Days())
	assert.False(t, req.ConfirmedByEmployee)
	assert.NotZero(t, req.ID)

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, balance.Consumed.IsZero(), "creation must not reserve days")
}

func TestCreate_MonotonicIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 2))
	require.NoError(t, err)
	second, err := svc.Create(ctx, "emp-2", date(2026, 8, 1), date(2026, 8, 2))
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
}

func TestCreate_InvertedRange_Rejected(t *testing.T) {
	// GIVEN: A range with end before start
	// WHEN: Creating the request
	// THEN: ErrInvalidRange, nothing persisted

	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "emp-1", date(2026, 7, 10), date(2026, 7, 1))
	assert.ErrorIs(t, err, vacation.ErrInvalidRange)

	reqs, err := store.ListByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestCreate_SingleDayRange_CountsOne(t *testing.T) {
	// Inclusive endpoints: start == end is one day.
	svc, _ := newTestService(t)

	req, err := svc.Create(context.Background(), "emp-1", date(2026, 7, 1), date(2026, 7, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, req.Days())
}

func TestCreate_InsufficientBalance_Advisory(t *testing.T) {
	// GIVEN: emp-1 has 5 days remaining (15 of 20 consumed)
	// WHEN: Requesting 7 days
	// THEN: InsufficientBalanceError with the shortfall amounts

	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "emp-1", vacation.Days(15))
	require.NoError(t, err)

	_, err = svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 7))
	require.Error(t, err)

	var insufficient *vacation.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "emp-1", insufficient.EmployeeID)
	assert.Equal(t, "7", insufficient.Requested.String())
	assert.Equal(t, "5", insufficient.Remaining.String())
}

func TestCreate_UnknownEmployee_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "ghost", date(2026, 7, 1), date(2026, 7, 3))
	assert.True(t, vacation.IsNotFound(err))
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApprove_ReservesDays(t *testing.T) {
	// GIVEN: A pending 10-day request for emp-1 (20 allocated)
	// WHEN: The employee's manager approves
	// THEN: Status approved, 10 days consumed, decision fields set

	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, "mgr-1", *approved.DecidedBy)
	assert.NotNil(t, approved.DecidedAt)
	assert.False(t, approved.ConfirmedByEmployee)

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "10", balance.Consumed.String())
	assert.Equal(t, "10", balance.Remaining().String())
}

func TestApprove_NotifiesOwner(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 3))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	inbox, err := store.ListByRecipient(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, vacation.NotifyRequestApproved, inbox[0].Type)
	assert.Equal(t, req.ID, inbox[0].RelatedRequestID)
}

func TestApprove_WrongManager_Forbidden(t *testing.T) {
	// GIVEN: emp-1 reports to mgr-1
	// WHEN: mgr-2 tries to approve
	// THEN: AuthorizationError; request stays pending, nothing reserved

	svc, store := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "mgr-2")
	assert.ErrorIs(t, err, vacation.ErrAuthorization)

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPending, fresh.Status)

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, balance.Consumed.IsZero())
}

func TestApprove_NonManagerActor_Forbidden(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "emp-2")
	assert.ErrorIs(t, err, vacation.ErrAuthorization)
}

func TestApprove_Twice_InvalidState(t *testing.T) {
	// GIVEN: An already-approved request
	// WHEN: Approving again
	// THEN: InvalidStateError and the ledger is not charged twice

	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	assert.ErrorIs(t, err, vacation.ErrInvalidState)

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "5", balance.Consumed.String(), "second approval must not reserve again")
}

// rescheduleMidDecision rewrites one request's dates right before the
// first decision write, simulating an owner edit landing between the
// decision's read and its compare-and-set.
type rescheduleMidDecision struct {
	vacation.Store
	requestID int64
	newStart  vacation.Date
	newEnd    vacation.Date
	once      sync.Once
}

func (s *rescheduleMidDecision) TransitionStatus(ctx context.Context, id int64, guard vacation.DecisionGuard, to vacation.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	s.once.Do(func() {
		_, _ = s.Store.UpdateDates(ctx, s.requestID, s.newStart, s.newEnd)
	})
	return s.Store.TransitionStatus(ctx, id, guard, to, decidedBy, decidedAt)
}

func TestApprove_RescheduledMidDecision_NotCharged(t *testing.T) {
	// GIVEN: A pending 10-day request
	// WHEN: The owner reschedules it to a 20-day range after the approval
	//       read the request but before the status write
	// THEN: The approval fails, the 10 reserved days come back, and a
	//       retry charges the rescheduled day count

	svc, store := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	racy := &rescheduleMidDecision{
		Store:     store,
		requestID: req.ID,
		newStart:  date(2026, 7, 1),
		newEnd:    date(2026, 7, 20),
	}
	_, err = vacation.NewService(racy).Approve(ctx, req.ID, "mgr-1")
	assert.ErrorIs(t, err, vacation.ErrInvalidState)

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPending, fresh.Status, "lost approval leaves the request pending")
	assert.Equal(t, "2026-07-20", fresh.EndDate.String())

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, balance.Consumed.IsZero(), "lost approval must return the reserved days")

	approved, err := svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, 20, approved.Days())

	balance, err = svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "20", balance.Consumed.String(), "consumed must match the approved request's day count")
}

func TestApprove_BalanceAuthoritativeAtDecisionTime(t *testing.T) {
	// GIVEN: emp-1 has 20 days and two pending requests: 15 days and 10
	//        days. Both passed the advisory check at creation.
	// WHEN: The 15-day request is approved, then the 10-day one
	// THEN: The second approval fails the authoritative re-check and the
	//       request stays pending; the ledger holds at 15 consumed

	svc, store := newTestService(t)
	ctx := context.Background()

	reqA, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 15))
	require.NoError(t, err)
	reqB, err := svc.Create(ctx, "emp-1", date(2026, 9, 1), date(2026, 9, 10))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, reqA.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, reqB.ID, "mgr-1")
	assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)

	fresh, err := store.GetRequest(ctx, reqB.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPending, fresh.Status, "failed approval leaves the request pending")

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "15", balance.Consumed.String())
}

// =============================================================================
// REJECT
// =============================================================================

func TestReject_NoLedgerEffect(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: The manager rejects it
	// THEN: Status rejected, ledger untouched, owner notified

	svc, store := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.DecidedBy)
	assert.Equal(t, "mgr-1", *rejected.DecidedBy)

	balance, err := svc.Ledger().GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, balance.Consumed.IsZero())

	inbox, err := store.ListByRecipient(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, vacation.NotifyRequestRejected, inbox[0].Type)
}

func TestReject_Terminal(t *testing.T) {
	// Rejected requests cannot be approved, rejected again, or edited.
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)
	_, err = svc.Reject(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	assert.ErrorIs(t, err, vacation.ErrInvalidState)

	_, err = svc.Reject(ctx, req.ID, "mgr-1")
	assert.ErrorIs(t, err, vacation.ErrInvalidState)

	_, err = svc.Edit(ctx, req.ID, "emp-1", date(2026, 8, 1), date(2026, 8, 3))
	assert.ErrorIs(t, err, vacation.ErrInvalidState)
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_PendingOnly(t *testing.T) {
	// GIVEN: A pending request for July 1-10
	// WHEN: The owner reschedules to August 1-5
	// THEN: Dates change, status stays pending, manager is notified

	svc, store := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, req.ID, "emp-1", date(2026, 8, 1), date(2026, 8, 5))
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", edited.StartDate.String())
	assert.Equal(t, "2026-08-05", edited.EndDate.String())
	assert.Equal(t, vacation.StatusPending, edited.Status)

	inbox, err := store.ListByRecipient(ctx, "mgr-1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, vacation.NotifyRequestRescheduled, inbox[0].Type)
}

func TestEdit_NotOwner_Forbidden(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	_, err = svc.Edit(ctx, req.ID, "emp-2", date(2026, 8, 1), date(2026, 8, 5))
	assert.ErrorIs(t, err, vacation.ErrAuthorization)
}

func TestEdit_InvertedRange_Rejected(t *testing.T) {
	// Edit re-validates exactly like Create: inverted ranges never land.
	svc, store := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 10))
	require.NoError(t, err)

	_, err = svc.Edit(ctx, req.ID, "emp-1", date(2026, 8, 5), date(2026, 8, 1))
	assert.ErrorIs(t, err, vacation.ErrInvalidRange)

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", fresh.StartDate.String(), "failed edit must not change dates")
}

func TestEdit_AfterApproval_InvalidState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Edit(ctx, req.ID, "emp-1", date(2026, 8, 1), date(2026, 8, 5))
	assert.ErrorIs(t, err, vacation.ErrInvalidState)
}

func TestEdit_InsufficientBalance_Rejected(t *testing.T) {
	// GIVEN: emp-1 has 5 days remaining and a pending 3-day request
	// WHEN: Editing it to a 7-day range
	// THEN: InsufficientBalanceError; original range preserved

	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := store.Reserve(ctx, "emp-1", vacation.Days(15))
	require.NoError(t, err)

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 3))
	require.NoError(t, err)

	_, err = svc.Edit(ctx, req.ID, "emp-1", date(2026, 7, 1), date(2026, 7, 7))
	assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-03", fresh.EndDate.String())
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestConfirm_ApprovedOnly(t *testing.T) {
	// GIVEN: An approved request
	// WHEN: The owner confirms
	// THEN: The flag is set; confirming again is a harmless no-op

	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, req.ID, "emp-1")
	require.NoError(t, err)
	assert.True(t, confirmed.ConfirmedByEmployee)

	again, err := svc.Confirm(ctx, req.ID, "emp-1")
	require.NoError(t, err, "confirm is idempotent")
	assert.True(t, again.ConfirmedByEmployee)
}

func TestConfirm_PendingRequest_InvalidState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, req.ID, "emp-1")
	assert.ErrorIs(t, err, vacation.ErrInvalidState)
}

func TestConfirm_NotOwner_Forbidden(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, "emp-1", date(2026, 7, 1), date(2026, 7, 5))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, req.ID, "emp-2")
	assert.ErrorIs(t, err, vacation.ErrAuthorization)
}
