// Package memory provides an in-memory vacation.Store implementation
// (for testing/dev). All atomicity contracts are honored under a single
// mutex: Reserve is check-and-decrement in one critical section, status
// transitions are compare-and-set, notification inserts are deduped.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

type notifKey struct {
	RecipientID string
	RequestID   int64
	Type        vacation.NotificationType
}

type Store struct {
	mu            sync.RWMutex
	employees     map[string]vacation.Employee
	balances      map[string]vacation.LeaveBalance
	requests      map[int64]vacation.VacationRequest
	nextRequestID int64
	notifications map[string]vacation.Notification
	notifIndex    map[notifKey]string // dedup index -> notification ID
}

func New() *Store {
	return &Store{
		employees:     make(map[string]vacation.Employee),
		balances:      make(map[string]vacation.LeaveBalance),
		requests:      make(map[int64]vacation.VacationRequest),
		notifications: make(map[string]vacation.Notification),
		notifIndex:    make(map[notifKey]string),
	}
}

var _ vacation.Store = (*Store)(nil)

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (s *Store) GetEmployee(_ context.Context, id string) (*vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return nil, &vacation.NotFoundError{Kind: "employee", ID: id}
	}
	return &e, nil
}

func (s *Store) ListEmployees(_ context.Context) ([]vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEmployeesLocked(func(vacation.Employee) bool { return true }), nil
}

func (s *Store) ListByManager(_ context.Context, managerID string) ([]vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEmployeesLocked(func(e vacation.Employee) bool {
		return e.ManagerID != nil && *e.ManagerID == managerID
	}), nil
}

func (s *Store) ListByRole(_ context.Context, role vacation.Role) ([]vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEmployeesLocked(func(e vacation.Employee) bool { return e.Role == role }), nil
}

func (s *Store) SaveEmployee(_ context.Context, e vacation.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.employees[e.ID] = e
	return nil
}

func (s *Store) listEmployeesLocked(keep func(vacation.Employee) bool) []vacation.Employee {
	var out []vacation.Employee
	for _, e := range s.employees {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) GetBalance(_ context.Context, employeeID string) (*vacation.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[employeeID]
	if !ok {
		return nil, &vacation.NotFoundError{Kind: "balance", ID: employeeID}
	}
	return &b, nil
}

func (s *Store) SetAllocation(_ context.Context, employeeID string, allocated decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[employeeID]
	if !ok {
		b = vacation.LeaveBalance{EmployeeID: employeeID, Consumed: decimal.Zero}
	}
	b.Allocated = allocated
	s.balances[employeeID] = b
	return nil
}

// Reserve is the atomic check-and-decrement. The check and the write
// happen inside one critical section, so concurrent reservations for
// the same employee serialize.
func (s *Store) Reserve(_ context.Context, employeeID string, days decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[employeeID]
	if !ok {
		return decimal.Zero, &vacation.NotFoundError{Kind: "balance", ID: employeeID}
	}
	if days.GreaterThan(b.Remaining()) {
		return decimal.Zero, &vacation.InsufficientBalanceError{
			EmployeeID: employeeID,
			Requested:  days,
			Remaining:  b.Remaining(),
		}
	}
	b.Consumed = b.Consumed.Add(days)
	s.balances[employeeID] = b
	return b.Remaining(), nil
}

func (s *Store) Release(_ context.Context, employeeID string, days decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[employeeID]
	if !ok {
		return false, &vacation.NotFoundError{Kind: "balance", ID: employeeID}
	}
	clamped := false
	b.Consumed = b.Consumed.Sub(days)
	if b.Consumed.IsNegative() {
		b.Consumed = decimal.Zero
		clamped = true
	}
	s.balances[employeeID] = b
	return clamped, nil
}

// =============================================================================
// REQUEST STORE
// =============================================================================

func (s *Store) CreateRequest(_ context.Context, r *vacation.VacationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRequestID++
	r.ID = s.nextRequestID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *Store) GetRequest(_ context.Context, id int64) (*vacation.VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	return &r, nil
}

func (s *Store) UpdateDates(_ context.Context, id int64, start, end vacation.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return false, &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	if r.Status != vacation.StatusPending {
		return false, nil
	}
	r.StartDate = start
	r.EndDate = end
	s.requests[id] = r
	return true, nil
}

func (s *Store) TransitionStatus(_ context.Context, id int64, guard vacation.DecisionGuard, to vacation.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return false, &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	if r.Status != guard.Status || !r.StartDate.Equal(guard.Start) || !r.EndDate.Equal(guard.End) {
		return false, nil
	}
	r.Status = to
	r.DecidedBy = &decidedBy
	r.DecidedAt = &decidedAt
	r.ConfirmedByEmployee = false
	s.requests[id] = r
	return true, nil
}

func (s *Store) SetConfirmed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	r.ConfirmedByEmployee = true
	s.requests[id] = r
	return nil
}

func (s *Store) ListByEmployee(_ context.Context, employeeID string) ([]vacation.VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequestsLocked(func(r vacation.VacationRequest) bool { return r.EmployeeID == employeeID }), nil
}

func (s *Store) ListByStatus(_ context.Context, status vacation.RequestStatus) ([]vacation.VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequestsLocked(func(r vacation.VacationRequest) bool { return r.Status == status }), nil
}

func (s *Store) ListAll(_ context.Context) ([]vacation.VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequestsLocked(func(vacation.VacationRequest) bool { return true }), nil
}

func (s *Store) listRequestsLocked(keep func(vacation.VacationRequest) bool) []vacation.VacationRequest {
	var out []vacation.VacationRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// NOTIFICATION STORE
// =============================================================================

func (s *Store) CreateNotification(_ context.Context, n vacation.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := notifKey{RecipientID: n.RecipientID, RequestID: n.RelatedRequestID, Type: n.Type}
	if _, exists := s.notifIndex[key]; exists {
		return false, nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifications[n.ID] = n
	s.notifIndex[key] = n.ID
	return true, nil
}

func (s *Store) GetNotification(_ context.Context, id string) (*vacation.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, &vacation.NotFoundError{Kind: "notification", ID: id}
	}
	return &n, nil
}

func (s *Store) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return &vacation.NotFoundError{Kind: "notification", ID: id}
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) ListByRecipient(_ context.Context, recipientID string) ([]vacation.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vacation.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	// Newest first, ID as tie-break for deterministic ordering.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}
