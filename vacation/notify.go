/*
notify.go - Reminder notification sweep and inbox operations

PURPOSE:
  Derives reminder/start-day notifications from approved requests' date
  ranges, independent of the requests' own state transitions. Runs as a
  periodic, idempotent sweep (not request-triggered).

SWEEP RULES:
  For each approved request, relative to the sweep date:
  - start_date exactly 14 days out -> vacation_reminder_14d for the
    employee, their manager (if any), and every HR user
  - start_date today               -> vacation_start_today for the
    employee and their manager (HR settles for the 14-day reminder)

IDEMPOTENCY:
  Generation is keyed by (recipient, request, type). The store's
  CreateNotification checks existence before insert (backed by a unique
  index), so re-running the sweep - including two sweeps racing from
  overlapping timers - never creates duplicates. No scheduler-level
  locking is needed.

SEE ALSO:
  - store.go: CreateNotification dedup contract
  - api/scheduler.go: The ticker goroutine that drives Sweep
*/
package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationService owns the reminder sweep and the per-recipient
// inbox operations (list, unread count, mark read).
type NotificationService struct {
	store Store
}

func NewNotificationService(store Store) *NotificationService {
	return &NotificationService{store: store}
}

// SweepResult reports what one sweep pass did.
type SweepResult struct {
	Created int // notifications inserted
	Skipped int // (recipient, request, type) pairs already notified
}

// Sweep scans all approved requests and materializes due reminders for
// the given reference date. Safe to run concurrently with itself.
func (ns *NotificationService) Sweep(ctx context.Context, today Date) (SweepResult, error) {
	var result SweepResult

	approved, err := ns.store.ListByStatus(ctx, StatusApproved)
	if err != nil {
		return result, fmt.Errorf("sweep: listing approved requests: %w", err)
	}
	hrUsers, err := ns.store.ListByRole(ctx, RoleHR)
	if err != nil {
		return result, fmt.Errorf("sweep: listing hr users: %w", err)
	}

	for _, req := range approved {
		delta := DaysBetween(today, req.StartDate)
		if delta != 0 && delta != 14 {
			continue
		}

		owner, err := ns.store.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			// Orphaned request; skip rather than abort the whole sweep.
			continue
		}

		recipients := []string{owner.ID}
		if owner.ManagerID != nil {
			recipients = append(recipients, *owner.ManagerID)
		}

		typ := NotifyStartToday
		if delta == 14 {
			typ = NotifyReminder14d
			for _, hr := range hrUsers {
				recipients = append(recipients, hr.ID)
			}
		}

		for _, recipientID := range recipients {
			created, err := ns.store.CreateNotification(ctx, newNotification(recipientID, typ, req.ID, time.Now()))
			if err != nil {
				return result, fmt.Errorf("sweep: notifying %s for request %d: %w", recipientID, req.ID, err)
			}
			if created {
				result.Created++
			} else {
				result.Skipped++
			}
		}
	}
	return result, nil
}

// SweepBy runs the sweep on behalf of an actor. Restricted to HR, like
// the other cross-employee surfaces; the scheduler bypasses this and
// calls Sweep directly.
func (ns *NotificationService) SweepBy(ctx context.Context, actorID string, today Date) (SweepResult, error) {
	actor, err := ns.store.GetEmployee(ctx, actorID)
	if err != nil {
		return SweepResult{}, err
	}
	if actor.Role != RoleHR {
		return SweepResult{}, &AuthorizationError{ActorID: actorID, Action: "run notification sweep", Reason: "actor is not hr"}
	}
	return ns.Sweep(ctx, today)
}

// =============================================================================
// INBOX OPERATIONS
// =============================================================================

// Notifications returns the actor's inbox, newest first.
func (ns *NotificationService) Notifications(ctx context.Context, actorID string) ([]Notification, error) {
	return ns.store.ListByRecipient(ctx, actorID)
}

// UnreadCount returns how many of the actor's notifications are unread.
func (ns *NotificationService) UnreadCount(ctx context.Context, actorID string) (int, error) {
	return ns.store.UnreadCount(ctx, actorID)
}

// MarkRead flags a notification as read. Legal only for the recipient;
// idempotent for already-read notifications.
func (ns *NotificationService) MarkRead(ctx context.Context, notificationID, actorID string) (*Notification, error) {
	n, err := ns.store.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != actorID {
		return nil, &AuthorizationError{ActorID: actorID, Action: "mark notification read", Reason: "not the recipient"}
	}
	if n.Read {
		return n, nil
	}
	if err := ns.store.MarkRead(ctx, notificationID); err != nil {
		return nil, err
	}
	n.Read = true
	return n, nil
}

// newNotification builds an unsaved notification record.
func newNotification(recipientID string, typ NotificationType, requestID int64, at time.Time) Notification {
	return Notification{
		ID:               uuid.NewString(),
		RecipientID:      recipientID,
		Type:             typ,
		RelatedRequestID: requestID,
		CreatedAt:        at,
	}
}
