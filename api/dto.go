/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator struct tags; handlers run
  them through the shared validator instance before touching the domain.
  Cross-field rules (end >= start) stay in the domain, where they are
  enforced regardless of transport.

SEE ALSO:
  - handlers.go: Uses these types
  - vacation/types.go: The domain model these project
*/
package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/warp/vacation-engine/vacation"
)

var validate = validator.New()

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateRequestBody is the request body for submitting a vacation request.
type CreateRequestBody struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// EditRequestBody is the request body for rescheduling a pending request.
type EditRequestBody struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RequestDTO represents a vacation request in API responses.
type RequestDTO struct {
	ID                  int64   `json:"id"`
	EmployeeID          string  `json:"employee_id"`
	EmployeeName        string  `json:"employee_name,omitempty"`
	StartDate           string  `json:"start_date"`
	EndDate             string  `json:"end_date"`
	Days                int     `json:"days"`
	Status              string  `json:"status"`
	ConfirmedByEmployee bool    `json:"confirmed_by_employee"`
	CreatedAt           string  `json:"created_at"`
	DecidedBy           *string `json:"decided_by,omitempty"`
	DecidedAt           *string `json:"decided_at,omitempty"`
}

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Department string  `json:"department,omitempty"`
	ManagerID  *string `json:"manager_id,omitempty"`
}

// BalanceDTO represents one employee's leave pool. Amounts are decimal
// strings so clients never round them through float64.
type BalanceDTO struct {
	EmployeeID string `json:"employee_id"`
	Allocated  string `json:"allocated"`
	Consumed   string `json:"consumed"`
	Remaining  string `json:"remaining"`
}

// EmployeeViewDTO is the employee-facing request list.
type EmployeeViewDTO struct {
	Employee EmployeeDTO  `json:"employee"`
	Balance  BalanceDTO   `json:"balance"`
	Requests []RequestDTO `json:"requests"`
}

// ReportBalanceDTO is one direct report's balance line.
type ReportBalanceDTO struct {
	Employee EmployeeDTO `json:"employee"`
	Balance  BalanceDTO  `json:"balance"`
}

// ManagerViewDTO is the manager-facing team view.
type ManagerViewDTO struct {
	Requests []RequestDTO       `json:"requests"`
	Reports  []ReportBalanceDTO `json:"reports"`
}

// HRViewDTO is the unrestricted request table.
type HRViewDTO struct {
	Requests []RequestDTO `json:"requests"`
}

// ScheduleRowDTO is one employee's month occupancy for a year.
type ScheduleRowDTO struct {
	EmployeeID   string  `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	MonthDays    [12]int `json:"month_days"`
	TotalDays    int     `json:"total_days"`
}

// ScheduleDTO is the aggregate year schedule.
type ScheduleDTO struct {
	Year int              `json:"year"`
	Rows []ScheduleRowDTO `json:"rows"`
}

// NotificationDTO represents an inbox entry. Message is derived from the
// type server-side so all clients render the same wording.
type NotificationDTO struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Message          string `json:"message"`
	RelatedRequestID int64  `json:"related_request_id"`
	CreatedAt        string `json:"created_at"`
	Read             bool   `json:"read"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRequestDTO(r vacation.VacationRequest) RequestDTO {
	dto := RequestDTO{
		ID:                  r.ID,
		EmployeeID:          r.EmployeeID,
		StartDate:           r.StartDate.String(),
		EndDate:             r.EndDate.String(),
		Days:                r.Days(),
		Status:              string(r.Status),
		ConfirmedByEmployee: r.ConfirmedByEmployee,
		CreatedAt:           r.CreatedAt.Format(time.RFC3339),
		DecidedBy:           r.DecidedBy,
	}
	if r.DecidedAt != nil {
		s := r.DecidedAt.Format(time.RFC3339)
		dto.DecidedAt = &s
	}
	return dto
}

func toRequestDTOs(reqs []vacation.VacationRequest) []RequestDTO {
	dtos := make([]RequestDTO, len(reqs))
	for i, r := range reqs {
		dtos[i] = toRequestDTO(r)
	}
	return dtos
}

func toRowDTO(row vacation.RequestRow) RequestDTO {
	dto := toRequestDTO(row.VacationRequest)
	dto.EmployeeName = row.Employee.DisplayName()
	return dto
}

func toRowDTOs(rows []vacation.RequestRow) []RequestDTO {
	dtos := make([]RequestDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toRowDTO(row)
	}
	return dtos
}

func toEmployeeDTO(e vacation.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:         e.ID,
		Username:   e.Username,
		Name:       e.DisplayName(),
		Role:       string(e.Role),
		Department: e.Department,
		ManagerID:  e.ManagerID,
	}
}

func toBalanceDTO(b vacation.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		EmployeeID: b.EmployeeID,
		Allocated:  b.Allocated.String(),
		Consumed:   b.Consumed.String(),
		Remaining:  b.Remaining().String(),
	}
}

func toNotificationDTO(n vacation.Notification) NotificationDTO {
	return NotificationDTO{
		ID:               n.ID,
		Type:             string(n.Type),
		Message:          notificationMessage(n),
		RelatedRequestID: n.RelatedRequestID,
		CreatedAt:        n.CreatedAt.Format(time.RFC3339),
		Read:             n.Read,
	}
}

func notificationMessage(n vacation.Notification) string {
	switch n.Type {
	case vacation.NotifyReminder14d:
		return fmt.Sprintf("Vacation request #%d starts in 14 days", n.RelatedRequestID)
	case vacation.NotifyStartToday:
		return fmt.Sprintf("Vacation request #%d starts today", n.RelatedRequestID)
	case vacation.NotifyRequestApproved:
		return fmt.Sprintf("Your vacation request #%d was approved", n.RelatedRequestID)
	case vacation.NotifyRequestRejected:
		return fmt.Sprintf("Your vacation request #%d was rejected", n.RelatedRequestID)
	case vacation.NotifyRequestRescheduled:
		return fmt.Sprintf("Vacation request #%d was rescheduled", n.RelatedRequestID)
	default:
		return fmt.Sprintf("Update on vacation request #%d", n.RelatedRequestID)
	}
}
