package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedEmployee(t *testing.T, store *sqlite.Store, id string, role vacation.Role, managerID *string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, vacation.Employee{
		ID: id, Username: id, Role: role, ManagerID: managerID,
	}))
	require.NoError(t, store.SetAllocation(ctx, id, vacation.Days(20)))
}

func seedRequest(t *testing.T, store *sqlite.Store, employeeID string) *vacation.VacationRequest {
	t.Helper()
	req := &vacation.VacationRequest{
		EmployeeID: employeeID,
		StartDate:  vacation.NewDate(2026, time.July, 1),
		EndDate:    vacation.NewDate(2026, time.July, 10),
		Status:     vacation.StatusPending,
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestStore_EmployeeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	managerID := "mgr-1"
	seedEmployee(t, store, "mgr-1", vacation.RoleManager, nil)
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, &managerID)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.RoleEmployee, emp.Role)
	require.NotNil(t, emp.ManagerID)
	assert.Equal(t, "mgr-1", *emp.ManagerID)

	_, err = store.GetEmployee(ctx, "ghost")
	assert.True(t, vacation.IsNotFound(err))
}

func TestStore_ListByManagerAndRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	managerID := "mgr-1"
	seedEmployee(t, store, "mgr-1", vacation.RoleManager, nil)
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, &managerID)
	seedEmployee(t, store, "emp-2", vacation.RoleEmployee, &managerID)
	seedEmployee(t, store, "hr-1", vacation.RoleHR, nil)

	reports, err := store.ListByManager(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	hr, err := store.ListByRole(ctx, vacation.RoleHR)
	require.NoError(t, err)
	require.Len(t, hr, 1)
	assert.Equal(t, "hr-1", hr[0].ID)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestStore_Reserve_CheckAndDecrement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)

	remaining, err := store.Reserve(ctx, "emp-1", vacation.Days(15))
	require.NoError(t, err)
	assert.Equal(t, "5", remaining.String())

	_, err = store.Reserve(ctx, "emp-1", vacation.Days(7))
	assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)

	balance, err := store.GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "15", balance.Consumed.String(), "failed reserve must not change consumed")
}

func TestStore_Reserve_Concurrent(t *testing.T) {
	// 20 allocated, 10 racing reservations of 5 days: exactly 4 commit.
	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Reserve(ctx, "emp-1", vacation.Days(5))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 4, succeeded)

	balance, err := store.GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "20", balance.Consumed.String())
}

func TestStore_Release_ClampsAtZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)

	_, err := store.Reserve(ctx, "emp-1", vacation.Days(3))
	require.NoError(t, err)

	clamped, err := store.Release(ctx, "emp-1", vacation.Days(3))
	require.NoError(t, err)
	assert.False(t, clamped)

	clamped, err = store.Release(ctx, "emp-1", vacation.Days(1))
	require.NoError(t, err)
	assert.True(t, clamped, "over-release must report clamping")

	balance, err := store.GetBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, balance.Consumed.IsZero())
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestStore_CreateRequest_MonotonicIDs(t *testing.T) {
	store := newTestStore(t)
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)

	first := seedRequest(t, store, "emp-1")
	second := seedRequest(t, store, "emp-1")
	assert.Greater(t, second.ID, first.ID)
}

func TestStore_TransitionStatus_CAS(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: Transitioning pending->approved twice
	// THEN: First wins, second reports a lost CAS (false, nil)

	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)
	req := seedRequest(t, store, "emp-1")

	now := time.Now().UTC()
	guard := vacation.DecisionGuard{Status: vacation.StatusPending, Start: req.StartDate, End: req.EndDate}
	ok, err := store.TransitionStatus(ctx, req.ID, guard, vacation.StatusApproved, "mgr-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TransitionStatus(ctx, req.ID, guard, vacation.StatusApproved, "mgr-1", now)
	require.NoError(t, err)
	assert.False(t, ok, "lost CAS is not an error")

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, fresh.Status)
	require.NotNil(t, fresh.DecidedBy)
	assert.Equal(t, "mgr-1", *fresh.DecidedBy)
}

func TestStore_TransitionStatus_MissingRequest(t *testing.T) {
	store := newTestStore(t)

	guard := vacation.DecisionGuard{
		Status: vacation.StatusPending,
		Start:  vacation.NewDate(2026, time.July, 1),
		End:    vacation.NewDate(2026, time.July, 10),
	}
	_, err := store.TransitionStatus(context.Background(), 999,
		guard, vacation.StatusApproved, "mgr-1", time.Now())
	assert.True(t, vacation.IsNotFound(err))
}

func TestStore_TransitionStatus_StaleDates(t *testing.T) {
	// GIVEN: A pending request rescheduled after its dates were read
	// WHEN: Transitioning with a guard carrying the old date range
	// THEN: The CAS loses (false, nil) and the request stays pending

	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)
	req := seedRequest(t, store, "emp-1")

	stale := vacation.DecisionGuard{Status: vacation.StatusPending, Start: req.StartDate, End: req.EndDate}

	ok, err := store.UpdateDates(ctx, req.ID,
		vacation.NewDate(2026, time.July, 1), vacation.NewDate(2026, time.July, 20))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TransitionStatus(ctx, req.ID, stale, vacation.StatusApproved, "mgr-1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "a rescheduled request must not be decided on stale dates")

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPending, fresh.Status)
}

func TestStore_UpdateDates_PendingGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)
	req := seedRequest(t, store, "emp-1")

	ok, err := store.UpdateDates(ctx, req.ID,
		vacation.NewDate(2026, time.August, 1), vacation.NewDate(2026, time.August, 5))
	require.NoError(t, err)
	assert.True(t, ok)

	guard := vacation.DecisionGuard{
		Status: vacation.StatusPending,
		Start:  vacation.NewDate(2026, time.August, 1),
		End:    vacation.NewDate(2026, time.August, 5),
	}
	_, err = store.TransitionStatus(ctx, req.ID, guard, vacation.StatusRejected, "mgr-1", time.Now())
	require.NoError(t, err)

	ok, err = store.UpdateDates(ctx, req.ID,
		vacation.NewDate(2026, time.September, 1), vacation.NewDate(2026, time.September, 5))
	require.NoError(t, err)
	assert.False(t, ok, "decided requests cannot be rescheduled")

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", fresh.StartDate.String())
}

func TestStore_RequestRoundTrip_PreservesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, store, "emp-1", vacation.RoleEmployee, nil)
	req := seedRequest(t, store, "emp-1")

	require.NoError(t, store.SetConfirmed(ctx, req.ID))

	fresh, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", fresh.StartDate.String())
	assert.Equal(t, "2026-07-10", fresh.EndDate.String())
	assert.True(t, fresh.ConfirmedByEmployee)
	assert.Nil(t, fresh.DecidedBy)
	assert.Nil(t, fresh.DecidedAt)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestStore_CreateNotification_Dedup(t *testing.T) {
	// The unique index on (recipient, request, type) makes the second
	// insert a silent no-op instead of a duplicate.
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateNotification(ctx, vacation.Notification{
		ID: "n-1", RecipientID: "emp-1", Type: vacation.NotifyReminder14d, RelatedRequestID: 1,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateNotification(ctx, vacation.Notification{
		ID: "n-2", RecipientID: "emp-1", Type: vacation.NotifyReminder14d, RelatedRequestID: 1,
	})
	require.NoError(t, err)
	assert.False(t, created)

	inbox, err := store.ListByRecipient(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestStore_CreateNotification_DistinctTypesAllowed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, typ := range []vacation.NotificationType{vacation.NotifyReminder14d, vacation.NotifyStartToday} {
		created, err := store.CreateNotification(ctx, vacation.Notification{
			ID: string(rune('a' + i)), RecipientID: "emp-1", Type: typ, RelatedRequestID: 1,
		})
		require.NoError(t, err)
		assert.True(t, created)
	}

	count, err := store.UnreadCount(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_MarkRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateNotification(ctx, vacation.Notification{
		ID: "n-1", RecipientID: "emp-1", Type: vacation.NotifyStartToday, RelatedRequestID: 1,
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkRead(ctx, "n-1"))

	n, err := store.GetNotification(ctx, "n-1")
	require.NoError(t, err)
	assert.True(t, n.Read)

	err = store.MarkRead(ctx, "ghost")
	assert.True(t, vacation.IsNotFound(err))
}
