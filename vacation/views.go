/*
views.go - Role-scoped view builder

PURPOSE:
  Pure projection of the request store and ledger into what each role is
  allowed to see. Performs no mutation:

  - Employee: own requests plus own balance
  - Manager:  direct reports' requests plus per-report balances
  - HR:       all requests, an aggregate year schedule (employee x month
              occupancy), and an export-ready flattened table of
              approved requests

SORTING:
  A stable, field-selectable, direction-toggling comparator applied at
  the view layer only. Sorting copies the slice; it never reorders the
  underlying store's data. Fields: id (numeric), period (start date),
  status (lexicographic), confirmed (false < true).

SEE ALSO:
  - lifecycle.go: The mutating counterpart of this package
  - api/handlers.go: Serializes these views to JSON/CSV
*/
package vacation

import (
	"context"
	"sort"
	"time"
)

// ViewBuilder reads the request store and ledger to produce role-scoped
// projections on demand.
type ViewBuilder struct {
	store Store
}

func NewViewBuilder(store Store) *ViewBuilder {
	return &ViewBuilder{store: store}
}

// =============================================================================
// SORTING
// =============================================================================

type SortField string

const (
	SortByID        SortField = "id"
	SortByPeriod    SortField = "period"
	SortByStatus    SortField = "status"
	SortByConfirmed SortField = "confirmed"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec selects the comparator field and direction. The zero value
// sorts by id ascending.
type SortSpec struct {
	Field     SortField
	Direction SortDirection
}

func (s SortSpec) normalized() SortSpec {
	switch s.Field {
	case SortByPeriod, SortByStatus, SortByConfirmed:
	default:
		s.Field = SortByID
	}
	if s.Direction != SortDesc {
		s.Direction = SortAsc
	}
	return s
}

// compare returns a three-way comparison of two requests on the
// selected field, ascending.
func (s SortSpec) compare(a, b *VacationRequest) int {
	switch s.Field {
	case SortByPeriod:
		switch {
		case a.StartDate.Before(b.StartDate):
			return -1
		case a.StartDate.After(b.StartDate):
			return 1
		}
		return 0
	case SortByStatus:
		switch {
		case a.Status < b.Status:
			return -1
		case a.Status > b.Status:
			return 1
		}
		return 0
	case SortByConfirmed:
		// Booleans compare as 0/1.
		av, bv := 0, 0
		if a.ConfirmedByEmployee {
			av = 1
		}
		if b.ConfirmedByEmployee {
			bv = 1
		}
		return av - bv
	default:
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	}
}

// SortRequests returns a sorted copy. The input slice is left untouched;
// equal elements keep their relative order (stable).
func SortRequests(reqs []VacationRequest, spec SortSpec) []VacationRequest {
	spec = spec.normalized()
	out := make([]VacationRequest, len(reqs))
	copy(out, reqs)
	sort.SliceStable(out, func(i, j int) bool {
		c := spec.compare(&out[i], &out[j])
		if spec.Direction == SortDesc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// SortRows sorts joined request rows with the same comparator.
func SortRows(rows []RequestRow, spec SortSpec) []RequestRow {
	spec = spec.normalized()
	out := make([]RequestRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		c := spec.compare(&out[i].VacationRequest, &out[j].VacationRequest)
		if spec.Direction == SortDesc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// =============================================================================
// VIEW TYPES
// =============================================================================

// RequestRow joins a request with its owner for manager/HR tables.
type RequestRow struct {
	VacationRequest
	Employee Employee
}

// EmployeeView is what an employee sees: their requests and balance.
type EmployeeView struct {
	Employee Employee
	Balance  LeaveBalance
	Requests []VacationRequest
}

// ReportBalance is one direct report's balance line.
type ReportBalance struct {
	Employee Employee
	Balance  LeaveBalance
}

// ManagerView covers a manager's direct reports.
type ManagerView struct {
	Manager  Employee
	Requests []RequestRow
	Reports  []ReportBalance
}

// HRView is the unrestricted request table.
type HRView struct {
	Requests []RequestRow
}

// ScheduleRow is one employee's month occupancy for a year: how many
// approved vacation days fall in each month.
type ScheduleRow struct {
	Employee  Employee
	MonthDays [12]int
	TotalDays int
}

// ScheduleView is the aggregate year schedule HR works from.
type ScheduleView struct {
	Year int
	Rows []ScheduleRow
}

// ExportRow is one flattened approved request for CSV export.
type ExportRow struct {
	ID        int64
	Employee  string
	StartDate Date
	EndDate   Date
	Days      int
	Status    RequestStatus
	CreatedAt time.Time
	Confirmed bool
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// ForEmployee projects the actor's own requests and balance.
func (v *ViewBuilder) ForEmployee(ctx context.Context, actorID string, spec SortSpec) (*EmployeeView, error) {
	emp, err := v.store.GetEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	balance, err := v.store.GetBalance(ctx, actorID)
	if err != nil {
		return nil, err
	}
	reqs, err := v.store.ListByEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return &EmployeeView{
		Employee: *emp,
		Balance:  *balance,
		Requests: SortRequests(reqs, spec),
	}, nil
}

// ForManager projects the requests and balances of the actor's direct
// reports. Fails with AuthorizationError for non-managers.
func (v *ViewBuilder) ForManager(ctx context.Context, actorID string, spec SortSpec) (*ManagerView, error) {
	manager, err := v.store.GetEmployee(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if manager.Role != RoleManager {
		return nil, &AuthorizationError{ActorID: actorID, Action: "view team requests", Reason: "actor is not a manager"}
	}

	reports, err := v.store.ListByManager(ctx, actorID)
	if err != nil {
		return nil, err
	}

	view := &ManagerView{Manager: *manager}
	var rows []RequestRow
	for _, report := range reports {
		reqs, err := v.store.ListByEmployee(ctx, report.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			rows = append(rows, RequestRow{VacationRequest: r, Employee: report})
		}
		balance, err := v.store.GetBalance(ctx, report.ID)
		if err != nil {
			return nil, err
		}
		view.Reports = append(view.Reports, ReportBalance{Employee: report, Balance: *balance})
	}
	view.Requests = SortRows(rows, spec)
	return view, nil
}

// ForHR projects every request in the system. Fails with
// AuthorizationError for non-HR actors.
func (v *ViewBuilder) ForHR(ctx context.Context, actorID string, spec SortSpec) (*HRView, error) {
	if err := v.requireHR(ctx, actorID, "view all requests"); err != nil {
		return nil, err
	}
	rows, err := v.allRows(ctx)
	if err != nil {
		return nil, err
	}
	return &HRView{Requests: SortRows(rows, spec)}, nil
}

// AggregateSchedule derives employee x month occupancy for a year from
// approved requests, optionally restricted to one manager's reports.
// Ranges spanning year boundaries are clipped to the requested year.
func (v *ViewBuilder) AggregateSchedule(ctx context.Context, actorID string, year int, managerID *string) (*ScheduleView, error) {
	if err := v.requireHR(ctx, actorID, "view aggregate schedule"); err != nil {
		return nil, err
	}

	var employees []Employee
	var err error
	if managerID != nil {
		employees, err = v.store.ListByManager(ctx, *managerID)
	} else {
		employees, err = v.store.ListEmployees(ctx)
	}
	if err != nil {
		return nil, err
	}

	view := &ScheduleView{Year: year}
	for _, emp := range employees {
		reqs, err := v.store.ListByEmployee(ctx, emp.ID)
		if err != nil {
			return nil, err
		}

		row := ScheduleRow{Employee: emp}
		for _, req := range reqs {
			if req.Status != StatusApproved {
				continue
			}
			clipped, ok := req.Range().ClipToYear(year)
			if !ok {
				continue
			}
			for d := clipped.Start; d.BeforeOrEqual(clipped.End); d = d.AddDays(1) {
				row.MonthDays[int(d.Month())-1]++
				row.TotalDays++
			}
		}
		view.Rows = append(view.Rows, row)
	}

	sort.SliceStable(view.Rows, func(i, j int) bool {
		a, b := view.Rows[i].Employee, view.Rows[j].Employee
		if a.DisplayName() != b.DisplayName() {
			return a.DisplayName() < b.DisplayName()
		}
		return a.ID < b.ID
	})
	return view, nil
}

// ExportApproved flattens all approved requests into export rows,
// ordered by request ID.
func (v *ViewBuilder) ExportApproved(ctx context.Context, actorID string) ([]ExportRow, error) {
	if err := v.requireHR(ctx, actorID, "export approved requests"); err != nil {
		return nil, err
	}

	rows, err := v.allRows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ExportRow, 0, len(rows))
	for _, row := range SortRows(rows, SortSpec{Field: SortByID}) {
		if row.Status != StatusApproved {
			continue
		}
		out = append(out, ExportRow{
			ID:        row.ID,
			Employee:  row.Employee.Username,
			StartDate: row.StartDate,
			EndDate:   row.EndDate,
			Days:      row.Days(),
			Status:    row.Status,
			CreatedAt: row.CreatedAt,
			Confirmed: row.ConfirmedByEmployee,
		})
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (v *ViewBuilder) requireHR(ctx context.Context, actorID, action string) error {
	actor, err := v.store.GetEmployee(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != RoleHR {
		return &AuthorizationError{ActorID: actorID, Action: action, Reason: "actor is not hr"}
	}
	return nil
}

func (v *ViewBuilder) allRows(ctx context.Context) ([]RequestRow, error) {
	reqs, err := v.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	employees, err := v.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	rows := make([]RequestRow, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, RequestRow{VacationRequest: r, Employee: byID[r.EmployeeID]})
	}
	return rows, nil
}
