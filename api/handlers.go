/*
handlers.go - HTTP API handlers for the vacation engine

PURPOSE:
  Exposes the vacation request lifecycle via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Requests:
    POST /api/vacation/requests               Submit a request
    GET  /api/vacation/requests               Role-scoped request list
    PUT  /api/vacation/requests/{id}          Reschedule a pending request
    POST /api/vacation/requests/{id}/confirm  Acknowledge an approval
    GET  /api/vacation/balance                Own leave balance

  Manager decisions:
    POST /api/manager/requests/{id}/approve
    POST /api/manager/requests/{id}/reject

  HR:
    GET /api/hr/schedule?year=&manager_id=    Aggregate year schedule
    GET /api/hr/schedule/export               Schedule as CSV
    GET /api/hr/export                        Approved requests as CSV

  Notifications:
    GET  /api/notifications
    GET  /api/notifications/unread_count
    POST /api/notifications/{id}/read

  Admin:
    POST /api/sweep                           Manual reminder sweep (HR)
    GET  /api/employees                       Directory listing

ACTOR IDENTITY:
  The authenticated actor arrives as the X-Actor-ID header, set by the
  authentication layer in front of this service. Handlers pass it down;
  role and ownership authorization live in the domain, not here.

ERROR HANDLING:
  Domain errors map to HTTP status via their taxonomy:
  - 400: invalid range, malformed input
  - 401: missing actor header
  - 403: authorization failures
  - 404: unknown employee/request/notification
  - 409: invalid state transitions, insufficient balance
  - 503: retryable storage failures
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - vacation/lifecycle.go: The state machine these call into
*/
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/vacation-engine/vacation"
)

// actorHeader carries the authenticated employee ID, set by the
// authentication layer in front of this service.
const actorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         vacation.Store
	Service       *vacation.Service
	Notifications *vacation.NotificationService
	Views         *vacation.ViewBuilder
}

// NewHandler wires the domain services over the given store.
func NewHandler(store vacation.Store) *Handler {
	return &Handler{
		Store:         store,
		Service:       vacation.NewService(store),
		Notifications: vacation.NewNotificationService(store),
		Views:         vacation.NewViewBuilder(store),
	}
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// CreateRequest submits a new vacation request for the actor.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var body CreateRequestBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	start, end, ok := parseRange(w, body.StartDate, body.EndDate)
	if !ok {
		return
	}

	req, err := h.Service.Create(r.Context(), actorID, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*req))
}

// EditRequest reschedules a pending request owned by the actor.
func (h *Handler) EditRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	var body EditRequestBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	start, end, ok := parseRange(w, body.StartDate, body.EndDate)
	if !ok {
		return
	}

	req, err := h.Service.Edit(r.Context(), requestID, actorID, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// ApproveRequest approves a pending request of one of the actor's reports.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Approve)
}

// RejectRequest rejects a pending request of one of the actor's reports.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision func(ctx context.Context, requestID int64, managerID string) (*vacation.VacationRequest, error)) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	req, err := decision(r.Context(), requestID, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// ConfirmRequest records the actor's acknowledgment of an approval.
func (h *Handler) ConfirmRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}

	req, err := h.Service.Confirm(r.Context(), requestID, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// GetBalance returns the actor's own leave balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	balance, err := h.Service.Ledger().GetBalance(r.Context(), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*balance))
}

// ListRequests returns the request list scoped to the actor's role:
// employees see their own, managers their reports', HR everything.
// Sorting via ?sort=id|period|status|confirmed&dir=asc|desc.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	spec := sortSpecFromQuery(r)

	actor, err := h.Store.GetEmployee(r.Context(), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch actor.Role {
	case vacation.RoleManager:
		view, err := h.Views.ForManager(r.Context(), actorID, spec)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		dto := ManagerViewDTO{Requests: toRowDTOs(view.Requests)}
		for _, rb := range view.Reports {
			dto.Reports = append(dto.Reports, ReportBalanceDTO{
				Employee: toEmployeeDTO(rb.Employee),
				Balance:  toBalanceDTO(rb.Balance),
			})
		}
		writeJSON(w, http.StatusOK, dto)

	case vacation.RoleHR:
		view, err := h.Views.ForHR(r.Context(), actorID, spec)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, HRViewDTO{Requests: toRowDTOs(view.Requests)})

	default:
		view, err := h.Views.ForEmployee(r.Context(), actorID, spec)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, EmployeeViewDTO{
			Employee: toEmployeeDTO(view.Employee),
			Balance:  toBalanceDTO(view.Balance),
			Requests: toRequestDTOs(view.Requests),
		})
	}
}

// =============================================================================
// HR HANDLERS
// =============================================================================

// HRSchedule returns the aggregate year schedule: approved vacation days
// per employee per month. ?year= defaults to the current year;
// ?manager_id= restricts to one manager's reports.
func (h *Handler) HRSchedule(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	view, err := h.schedule(r, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := ScheduleDTO{Year: view.Year, Rows: make([]ScheduleRowDTO, len(view.Rows))}
	for i, row := range view.Rows {
		dto.Rows[i] = ScheduleRowDTO{
			EmployeeID:   row.Employee.ID,
			EmployeeName: row.Employee.DisplayName(),
			MonthDays:    row.MonthDays,
			TotalDays:    row.TotalDays,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// HRScheduleExport streams the year schedule as CSV.
func (h *Handler) HRScheduleExport(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	view, err := h.schedule(r, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="schedule-%d.csv"`, view.Year))

	cw := csv.NewWriter(w)
	header := []string{"employee", "jan", "feb", "mar", "apr", "may", "jun",
		"jul", "aug", "sep", "oct", "nov", "dec", "total"}
	cw.Write(header)
	for _, row := range view.Rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Employee.DisplayName())
		for _, days := range row.MonthDays {
			record = append(record, strconv.Itoa(days))
		}
		record = append(record, strconv.Itoa(row.TotalDays))
		cw.Write(record)
	}
	cw.Flush()
}

// HRExport streams all approved requests as CSV.
func (h *Handler) HRExport(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	rows, err := h.Views.ExportApproved(r.Context(), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="approved-requests.csv"`)

	cw := csv.NewWriter(w)
	cw.Write([]string{"id", "employee", "start_date", "end_date", "days",
		"status", "created_at", "confirmed"})
	for _, row := range rows {
		cw.Write([]string{
			strconv.FormatInt(row.ID, 10),
			row.Employee,
			row.StartDate.String(),
			row.EndDate.String(),
			strconv.Itoa(row.Days),
			string(row.Status),
			row.CreatedAt.Format(time.RFC3339),
			strconv.FormatBool(row.Confirmed),
		})
	}
	cw.Flush()
}

func (h *Handler) schedule(r *http.Request, actorID string) (*vacation.ScheduleView, error) {
	year := time.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid year %q", vacation.ErrInvalidRange, y)
		}
		year = parsed
	}

	var managerID *string
	if m := r.URL.Query().Get("manager_id"); m != "" {
		managerID = &m
	}
	return h.Views.AggregateSchedule(r.Context(), actorID, year, managerID)
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications returns the actor's inbox, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	notifications, err := h.Notifications.Notifications(r.Context(), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": dtos})
}

// UnreadCount returns how many of the actor's notifications are unread.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	count, err := h.Notifications.UnreadCount(r.Context(), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkNotificationRead flags one of the actor's notifications as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	n, err := h.Notifications.MarkRead(r.Context(), id, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationDTO(*n))
}

// TriggerSweep runs the reminder sweep immediately. HR only.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	result, err := h.Notifications.SweepBy(r.Context(), actorID, vacation.Today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"created": result.Created,
		"skipped": result.Skipped,
	})
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// ListEmployees returns the employee directory.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := r.Header.Get(actorHeader)
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+actorHeader+" header", nil)
		return "", false
	}
	return actorID, true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func parseRange(w http.ResponseWriter, startStr, endStr string) (vacation.Date, vacation.Date, bool) {
	start, err := vacation.ParseDate(startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return vacation.Date{}, vacation.Date{}, false
	}
	end, err := vacation.ParseDate(endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return vacation.Date{}, vacation.Date{}, false
	}
	return start, end, true
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return 0, false
	}
	return id, true
}

func sortSpecFromQuery(r *http.Request) vacation.SortSpec {
	return vacation.SortSpec{
		Field:     vacation.SortField(r.URL.Query().Get("sort")),
		Direction: vacation.SortDirection(r.URL.Query().Get("dir")),
	}
}

// writeDomainError maps the domain error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vacation.ErrInvalidRange):
		writeErrorCode(w, http.StatusBadRequest, "invalid_range", err)
	case vacation.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, vacation.ErrAuthorization):
		writeErrorCode(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, vacation.ErrInsufficientBalance):
		writeErrorCode(w, http.StatusConflict, "insufficient_balance", err)
	case errors.Is(err, vacation.ErrInvalidState):
		writeErrorCode(w, http.StatusConflict, "invalid_state", err)
	case vacation.IsRetryable(err):
		writeErrorCode(w, http.StatusServiceUnavailable, "store_unavailable", err)
	default:
		writeErrorCode(w, http.StatusInternalServerError, "internal", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
