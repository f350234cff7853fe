/*
Package sqlite provides the SQLite-backed implementation of the
vacation.Store interfaces.

PURPOSE:
  Production persistence for employees, balances, requests and
  notifications. The same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

ATOMICITY:
  Reserve runs check-and-decrement inside a single database transaction
  (guarded additionally by the process mutex, since SQLite allows one
  writer at a time anyway). Status transitions are conditional UPDATEs
  on the expected prior status and date range; the affected-row count
  is the CAS result. Notification dedup is backed by a unique index on
  (recipient_id, related_request_id, type), so racing sweeps cannot
  insert duplicates.

KEY TABLES:
  employees:      Reference data (identity subsystem owns writes)
  balances:       One leave pool per employee; day amounts stored as
                  decimal strings
  requests:       AUTOINCREMENT ids give the monotonic request identity;
                  rows are never deleted
  notifications:  Deduplicated reminder/event records

WAL MODE:
  Opened with WAL (Write-Ahead Logging): readers don't block, single
  writer, better crash recovery.

ERRORS:
  Unexpected database failures are wrapped with
  vacation.ErrStoreUnavailable so callers can classify them as
  retryable. Domain conditions (missing rows, shortfalls, lost CAS)
  surface as the vacation package's error types.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (goose, golang-migrate) with versioned migrations.

SEE ALSO:
  - vacation/store.go: Interface contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// Store implements vacation.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ vacation.Store = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: is a separate database; pin the
	// pool to one connection so they all see the same data.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Employees (reference data)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		manager_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_manager
		ON employees(manager_id) WHERE manager_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_employees_role
		ON employees(role);

	-- Leave balances (one pool per employee; amounts as decimal strings)
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT PRIMARY KEY,
		allocated TEXT NOT NULL,
		consumed TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	-- Vacation requests (never deleted; AUTOINCREMENT keeps ids monotonic)
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		confirmed_by_employee INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		decided_by TEXT,
		decided_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_status_start
		ON requests(status, start_date);

	-- Notifications (dedup enforced at the schema level)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		type TEXT NOT NULL,
		related_request_id INTEGER NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one notification per (recipient, request, type).
	-- This is the backstop that keeps concurrent sweeps idempotent.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedup
		ON notifications(recipient_id, related_request_id, type);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_id, read);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

const employeeColumns = `id, username, first_name, last_name, role, department, manager_id, created_at`

func (s *Store) GetEmployee(ctx context.Context, id string) (*vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, &vacation.NotFoundError{Kind: "employee", ID: id}
	}
	if err != nil {
		return nil, storeErr("get employee", err)
	}
	return emp, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]vacation.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY id`)
}

func (s *Store) ListByManager(ctx context.Context, managerID string) ([]vacation.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE manager_id = ? ORDER BY id`, managerID)
}

func (s *Store) ListByRole(ctx context.Context, role vacation.Role) ([]vacation.Employee, error) {
	return s.queryEmployees(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE role = ? ORDER BY id`, string(role))
}

func (s *Store) SaveEmployee(ctx context.Context, e vacation.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, username, first_name, last_name, role, department, manager_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role,
			department = excluded.department,
			manager_id = excluded.manager_id`,
		e.ID, e.Username, e.FirstName, e.LastName, string(e.Role), e.Department,
		nullableString(e.ManagerID), createdAt.Format(time.RFC3339))
	if err != nil {
		return storeErr("save employee", err)
	}
	return nil
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query employees", err)
	}
	defer rows.Close()

	var out []vacation.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, storeErr("scan employee", err)
		}
		out = append(out, *emp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(r rowScanner) (*vacation.Employee, error) {
	var e vacation.Employee
	var role, createdAt string
	var managerID sql.NullString

	if err := r.Scan(&e.ID, &e.Username, &e.FirstName, &e.LastName, &role, &e.Department, &managerID, &createdAt); err != nil {
		return nil, err
	}
	e.Role = vacation.Role(role)
	if managerID.Valid {
		e.ManagerID = &managerID.String
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, employeeID string) (*vacation.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getBalanceTx(ctx, s.db, employeeID)
}

func (s *Store) getBalanceTx(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, employeeID string) (*vacation.LeaveBalance, error) {
	var allocated, consumed string
	err := q.QueryRowContext(ctx,
		`SELECT allocated, consumed FROM balances WHERE employee_id = ?`, employeeID).
		Scan(&allocated, &consumed)
	if err == sql.ErrNoRows {
		return nil, &vacation.NotFoundError{Kind: "balance", ID: employeeID}
	}
	if err != nil {
		return nil, storeErr("get balance", err)
	}

	b := &vacation.LeaveBalance{EmployeeID: employeeID}
	if b.Allocated, err = decimal.NewFromString(allocated); err != nil {
		return nil, &vacation.IntegrityError{EmployeeID: employeeID, Detail: "unparseable allocated amount " + allocated}
	}
	if b.Consumed, err = decimal.NewFromString(consumed); err != nil {
		return nil, &vacation.IntegrityError{EmployeeID: employeeID, Detail: "unparseable consumed amount " + consumed}
	}
	return b, nil
}

func (s *Store) SetAllocation(ctx context.Context, employeeID string, allocated decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (employee_id, allocated, consumed, updated_at)
		VALUES (?, ?, '0', ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			allocated = excluded.allocated,
			updated_at = excluded.updated_at`,
		employeeID, allocated.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return storeErr("set allocation", err)
	}
	return nil
}

// Reserve performs the check and the decrement inside one database
// transaction. The process mutex serializes writers on top of SQLite's
// own single-writer guarantee.
func (s *Store) Reserve(ctx context.Context, employeeID string, days decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, storeErr("begin reserve", err)
	}
	defer tx.Rollback()

	b, err := s.getBalanceTx(ctx, tx, employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	if days.GreaterThan(b.Remaining()) {
		return decimal.Zero, &vacation.InsufficientBalanceError{
			EmployeeID: employeeID,
			Requested:  days,
			Remaining:  b.Remaining(),
		}
	}

	newConsumed := b.Consumed.Add(days)
	if err := writeConsumed(ctx, tx, employeeID, newConsumed); err != nil {
		return decimal.Zero, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, storeErr("commit reserve", err)
	}
	return b.Allocated.Sub(newConsumed), nil
}

func (s *Store) Release(ctx context.Context, employeeID string, days decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr("begin release", err)
	}
	defer tx.Rollback()

	b, err := s.getBalanceTx(ctx, tx, employeeID)
	if err != nil {
		return false, err
	}

	clamped := false
	newConsumed := b.Consumed.Sub(days)
	if newConsumed.IsNegative() {
		newConsumed = decimal.Zero
		clamped = true
	}
	if err := writeConsumed(ctx, tx, employeeID, newConsumed); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr("commit release", err)
	}
	return clamped, nil
}

func writeConsumed(ctx context.Context, tx *sql.Tx, employeeID string, consumed decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE balances SET consumed = ?, updated_at = ? WHERE employee_id = ?`,
		consumed.String(), time.Now().UTC().Format(time.RFC3339), employeeID)
	if err != nil {
		return storeErr("write consumed", err)
	}
	return nil
}

// =============================================================================
// REQUEST STORE
// =============================================================================

const requestColumns = `id, employee_id, start_date, end_date, status, confirmed_by_employee, created_at, decided_by, decided_at`

func (s *Store) CreateRequest(ctx context.Context, r *vacation.VacationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (employee_id, start_date, end_date, status, confirmed_by_employee, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		r.EmployeeID, r.StartDate.String(), r.EndDate.String(), string(r.Status),
		r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return storeErr("create request", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("create request id", err)
	}
	r.ID = id
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id int64) (*vacation.VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, storeErr("get request", err)
	}
	return req, nil
}

// UpdateDates rewrites the range only while the row is still pending.
// The WHERE guard is the CAS; zero affected rows means the request was
// decided concurrently.
func (s *Store) UpdateDates(ctx context.Context, id int64, start, end vacation.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET start_date = ?, end_date = ? WHERE id = ? AND status = 'pending'`,
		start.String(), end.String(), id)
	if err != nil {
		return false, storeErr("update dates", err)
	}
	return s.affectedOne(ctx, res, id)
}

// TransitionStatus writes the decision only while the row still matches
// the guard (status plus date range). A concurrent decision or owner
// reschedule loses the CAS.
func (s *Store) TransitionStatus(ctx context.Context, id int64, guard vacation.DecisionGuard, to vacation.RequestStatus, decidedBy string, decidedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, decided_by = ?, decided_at = ?, confirmed_by_employee = 0
		WHERE id = ? AND status = ? AND start_date = ? AND end_date = ?`,
		string(to), decidedBy, decidedAt.UTC().Format(time.RFC3339),
		id, string(guard.Status), guard.Start.String(), guard.End.String())
	if err != nil {
		return false, storeErr("transition status", err)
	}
	return s.affectedOne(ctx, res, id)
}

func (s *Store) SetConfirmed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET confirmed_by_employee = 1 WHERE id = ?`, id)
	if err != nil {
		return storeErr("set confirmed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("set confirmed", err)
	}
	if n == 0 {
		return &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	return nil
}

func (s *Store) ListByEmployee(ctx context.Context, employeeID string) ([]vacation.VacationRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE employee_id = ? ORDER BY id`, employeeID)
}

func (s *Store) ListByStatus(ctx context.Context, status vacation.RequestStatus) ([]vacation.VacationRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status = ? ORDER BY id`, string(status))
}

func (s *Store) ListAll(ctx context.Context) ([]vacation.VacationRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests ORDER BY id`)
}

// affectedOne distinguishes "guard failed" from "no such row" so the
// CAS result is unambiguous for callers.
func (s *Store) affectedOne(ctx context.Context, res sql.Result, id int64) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("rows affected", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM requests WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return false, storeErr("check request exists", err)
	}
	if exists == 0 {
		return false, &vacation.NotFoundError{Kind: "request", ID: fmt.Sprint(id)}
	}
	return false, nil
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]vacation.VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query requests", err)
	}
	defer rows.Close()

	var out []vacation.VacationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, storeErr("scan request", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanRequest(r rowScanner) (*vacation.VacationRequest, error) {
	var req vacation.VacationRequest
	var start, end, status, createdAt string
	var confirmed int
	var decidedBy, decidedAt sql.NullString

	if err := r.Scan(&req.ID, &req.EmployeeID, &start, &end, &status, &confirmed, &createdAt, &decidedBy, &decidedAt); err != nil {
		return nil, err
	}

	var err error
	if req.StartDate, err = vacation.ParseDate(start); err != nil {
		return nil, err
	}
	if req.EndDate, err = vacation.ParseDate(end); err != nil {
		return nil, err
	}
	req.Status = vacation.RequestStatus(status)
	req.ConfirmedByEmployee = confirmed != 0
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if decidedBy.Valid {
		req.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		req.DecidedAt = &t
	}
	return &req, nil
}

// =============================================================================
// NOTIFICATION STORE
// =============================================================================

func (s *Store) CreateNotification(ctx context.Context, n vacation.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, related_request_id, read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		n.ID, n.RecipientID, string(n.Type), n.RelatedRequestID, createdAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			// Already notified for this (recipient, request, type).
			return false, nil
		}
		return false, storeErr("create notification", err)
	}
	return true, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*vacation.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, recipient_id, type, related_request_id, read, created_at
		FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, &vacation.NotFoundError{Kind: "notification", ID: id}
	}
	if err != nil {
		return nil, storeErr("get notification", err)
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return storeErr("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("mark read", err)
	}
	if n == 0 {
		return &vacation.NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

func (s *Store) ListByRecipient(ctx context.Context, recipientID string) ([]vacation.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, related_request_id, read, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, id`, recipientID)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}
	defer rows.Close()

	var out []vacation.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, storeErr("scan notification", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM notifications WHERE recipient_id = ? AND read = 0`, recipientID).
		Scan(&count)
	if err != nil {
		return 0, storeErr("unread count", err)
	}
	return count, nil
}

func scanNotification(r rowScanner) (*vacation.Notification, error) {
	var n vacation.Notification
	var typ, createdAt string
	var read int
	if err := r.Scan(&n.ID, &n.RecipientID, &typ, &n.RelatedRequestID, &read, &createdAt); err != nil {
		return nil, err
	}
	n.Type = vacation.NotificationType(typ)
	n.Read = read != 0
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// storeErr wraps unexpected database failures as retryable store errors.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", vacation.ErrStoreUnavailable, op, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
