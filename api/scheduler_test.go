package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/api"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

func TestSweepScheduler_RunNow(t *testing.T) {
	// GIVEN: An approved request starting 14 days out
	// WHEN: Triggering the scheduler manually
	// THEN: The reminder lands; a second trigger adds nothing

	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, vacation.Employee{
		ID: "emp-1", Username: "jonas", Role: vacation.RoleEmployee,
	}))

	start := vacation.Today().AddDays(14)
	req := &vacation.VacationRequest{
		EmployeeID: "emp-1",
		StartDate:  start,
		EndDate:    start.AddDays(2),
		Status:     vacation.StatusApproved,
	}
	require.NoError(t, store.CreateRequest(ctx, req))

	ns := vacation.NewNotificationService(store)
	scheduler := api.NewSweepScheduler(ns)

	scheduler.RunNow()
	scheduler.RunNow()

	inbox, err := store.ListByRecipient(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, inbox, 1, "repeated runs must not duplicate reminders")
}

func TestSweepScheduler_StartStop(t *testing.T) {
	store := memory.New()
	scheduler := api.NewSweepScheduler(vacation.NewNotificationService(store))
	scheduler.Interval = 10 * time.Millisecond

	scheduler.Start()
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
}

func TestSweepScheduler_StopTwice(t *testing.T) {
	store := memory.New()
	scheduler := api.NewSweepScheduler(vacation.NewNotificationService(store))
	scheduler.Interval = 10 * time.Millisecond

	scheduler.Start()
	scheduler.Stop()
	// A second Stop must be a no-op, not a close of the closed channel.
	scheduler.Stop()
}

func TestSweepScheduler_DisabledDoesNotStart(t *testing.T) {
	store := memory.New()
	scheduler := api.NewSweepScheduler(vacation.NewNotificationService(store))
	scheduler.Enabled = false

	scheduler.Start()
	// Stop on a never-started scheduler must not block or panic.
	scheduler.Stop()
}
