// Package store provides SQLite-backed persistence for TaskDesk.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/sla"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
	_ "modernc.org/sqlite"
)

// Store provides access to the TaskDesk SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time; serializing through a
	// single connection also serializes the decide/execute races per request.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT,
		priority TEXT,
		due_date DATETIME,
		status TEXT NOT NULL DEFAULT 'assigned',
		assigned_to TEXT,
		decline_type TEXT,
		reopen_due_at DATETIME,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (assigned_to) REFERENCES employees(id)
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		request_type TEXT NOT NULL,
		scope TEXT NOT NULL,
		reason TEXT NOT NULL,
		impact_note TEXT,
		proposed_changes TEXT,
		requested_extension DATETIME,
		sla_hours INTEGER NOT NULL,
		requested_at DATETIME NOT NULL,
		expires_at DATETIME,
		status TEXT NOT NULL DEFAULT 'pending',
		employee_viewed_at DATETIME,
		decision_note TEXT,
		admin_note TEXT,
		executed_at DATETIME,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (request_id) REFERENCES requests(id)
	);

	CREATE TABLE IF NOT EXISTS task_events (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor_role TEXT,
		actor_id TEXT,
		detail TEXT,
		inputs_hash TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_requests_task_id ON requests(task_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_messages_request_id ON messages(request_id);
	CREATE INDEX IF NOT EXISTS idx_task_events_task_id ON task_events(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Employee Operations ---

// CreateEmployee inserts a directory entry.
func (s *Store) CreateEmployee(name, email string, status models.EmployeeStatus) (*models.Employee, error) {
	if status == "" {
		status = models.EmployeeActive
	}
	emp := &models.Employee{
		ID:     uuid.New().String(),
		Name:   name,
		Email:  email,
		Status: status,
	}
	_, err := s.db.Exec(
		`INSERT INTO employees (id, name, email, status) VALUES (?, ?, ?, ?)`,
		emp.ID, emp.Name, emp.Email, emp.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert employee: %w", err)
	}
	return emp, nil
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(id string) (*models.Employee, error) {
	emp := &models.Employee{}
	err := s.db.QueryRow(
		`SELECT id, name, email, status FROM employees WHERE id = ?`, id,
	).Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query employee: %w", err)
	}
	return emp, nil
}

// ListEmployees returns employees, optionally filtered by status.
func (s *Store) ListEmployees(status models.EmployeeStatus) ([]models.Employee, error) {
	query := `SELECT id, name, email, status FROM employees`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var emps []models.Employee
	for rows.Next() {
		var emp models.Employee
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Status); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		emps = append(emps, emp)
	}
	return emps, rows.Err()
}

// --- Task Operations ---

// TaskInput carries the fields for creating a task.
type TaskInput struct {
	Title       string
	Description string
	Category    string
	Priority    string
	DueDate     *time.Time
	AssignedTo  string
}

// CreateTask inserts a new task assigned to an employee.
func (s *Store) CreateTask(in TaskInput) (*models.Task, error) {
	now := time.Now().UTC()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		Status:      models.TaskStatusAssigned,
		AssignedTo:  in.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, title, description, category, priority, due_date, status, assigned_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Category, task.Priority,
		task.DueDate, task.Status, nullStr(task.AssignedTo), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

const taskColumns = `id, title, description, category, priority, due_date, status, assigned_to, decline_type, reopen_due_at, deleted_at, created_at, updated_at`

func scanTask(row interface{ Scan(...interface{}) error }) (*models.Task, error) {
	task := &models.Task{}
	var description, category, priority, assignedTo, declineType sql.NullString
	var dueDate, reopenDueAt, deletedAt sql.NullTime

	err := row.Scan(&task.ID, &task.Title, &description, &category, &priority,
		&dueDate, &task.Status, &assignedTo, &declineType, &reopenDueAt,
		&deletedAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Category = category.String
	task.Priority = priority.String
	task.AssignedTo = assignedTo.String
	task.DeclineType = models.DeclineType(declineType.String)
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if reopenDueAt.Valid {
		task.ReopenDueAt = &reopenDueAt.Time
	}
	if deletedAt.Valid {
		task.DeletedAt = &deletedAt.Time
	}
	return task, nil
}

// GetTask retrieves a task by ID, including soft-deleted ones.
func (s *Store) GetTask(id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns non-deleted tasks, optionally filtered by status.
func (s *Store) ListTasks(status string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NULL`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets the externally-owned task status. The engine only
// validates that the value is a known one.
func (s *Store) UpdateTaskStatus(id string, status models.TaskStatus, declineType models.DeclineType) error {
	res, err := s.db.Exec(
		`UPDATE tasks SET status = ?, decline_type = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		status, nullStr(string(declineType)), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return workflow.NotFoundf("task %s", id)
	}
	return nil
}

// --- Request Operations ---

const requestColumns = `id, task_id, origin, request_type, reason, impact_note, proposed_changes, requested_extension, sla_hours, requested_at, expires_at, status, employee_viewed_at, decision_note, admin_note, executed_at, updated_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (*models.ModificationRequest, error) {
	req := &models.ModificationRequest{}
	var impactNote, changesJSON, decisionNote, adminNote sql.NullString
	var requestedExt, expiresAt, viewedAt, executedAt sql.NullTime

	err := row.Scan(&req.ID, &req.TaskID, &req.Origin, &req.RequestType,
		&req.Reason, &impactNote, &changesJSON, &requestedExt, &req.SLAHours,
		&req.RequestedAt, &expiresAt, &req.Status, &viewedAt, &decisionNote,
		&adminNote, &executedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	req.ImpactNote = impactNote.String
	req.DecisionNote = decisionNote.String
	req.AdminNote = adminNote.String
	if changesJSON.Valid && changesJSON.String != "" {
		var changes models.ProposedChanges
		if err := json.Unmarshal([]byte(changesJSON.String), &changes); err != nil {
			return nil, fmt.Errorf("decode proposed changes: %w", err)
		}
		req.ProposedChanges = &changes
	}
	if requestedExt.Valid {
		req.RequestedExtension = &requestedExt.Time
	}
	if expiresAt.Valid {
		req.ExpiresAt = &expiresAt.Time
	}
	if viewedAt.Valid {
		req.EmployeeViewedAt = &viewedAt.Time
	}
	if executedAt.Valid {
		req.ExecutedAt = &executedAt.Time
	}
	return req, nil
}

// CreateRequest opens a modification request inside a single transaction:
// the task must exist and not be deleted, and no open request of the same
// scope may exist. A stored pending/approved request whose deadline has
// passed does not block creation; only effectively-open requests count.
func (s *Store) CreateRequest(in workflow.CreateInput, now time.Time) (*models.ModificationRequest, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deletedAt sql.NullTime
	err = tx.QueryRow(`SELECT deleted_at FROM tasks WHERE id = ?`, in.TaskID).Scan(&deletedAt)
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("task %s", in.TaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	if deletedAt.Valid {
		return nil, workflow.InvalidStatef("task %s is deleted", in.TaskID)
	}

	scope := models.ScopeForType(in.RequestType)

	var openID string
	err = tx.QueryRow(
		`SELECT id FROM requests
		 WHERE task_id = ? AND scope = ?
		   AND (status = ?
		        OR (status IN (?, ?) AND (expires_at IS NULL OR expires_at > ?)))
		 LIMIT 1`,
		in.TaskID, scope,
		models.RequestStatusCounterOffered,
		models.RequestStatusPending, models.RequestStatusApproved, now,
	).Scan(&openID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check open request: %w", err)
	}
	if err == nil {
		return nil, workflow.InvalidStatef("task %s already has open request %s", in.TaskID, openID)
	}

	expiresAt := now.Add(time.Duration(in.SLAHours) * time.Hour)
	req := &models.ModificationRequest{
		ID:                 uuid.New().String(),
		TaskID:             in.TaskID,
		Origin:             in.Origin,
		RequestType:        in.RequestType,
		Reason:             in.Reason,
		ImpactNote:         in.ImpactNote,
		ProposedChanges:    in.ProposedChanges,
		RequestedExtension: in.RequestedExtension,
		SLAHours:           in.SLAHours,
		RequestedAt:        now,
		ExpiresAt:          &expiresAt,
		Status:             models.RequestStatusPending,
		UpdatedAt:          now,
	}

	var changesJSON interface{}
	if req.ProposedChanges != nil {
		data, err := json.Marshal(req.ProposedChanges)
		if err != nil {
			return nil, fmt.Errorf("encode proposed changes: %w", err)
		}
		changesJSON = string(data)
	}

	_, err = tx.Exec(
		`INSERT INTO requests (id, task_id, origin, request_type, scope, reason, impact_note, proposed_changes, requested_extension, sla_hours, requested_at, expires_at, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.TaskID, req.Origin, req.RequestType, scope, req.Reason,
		nullStr(req.ImpactNote), changesJSON, req.RequestedExtension,
		req.SLAHours, req.RequestedAt, req.ExpiresAt, req.Status, req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return req, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(id string) (*models.ModificationRequest, error) {
	req, err := scanRequest(s.db.QueryRow(
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	return req, nil
}

// ListRequestsForTask returns all requests for a task, newest first.
func (s *Store) ListRequestsForTask(taskID string) ([]models.ModificationRequest, error) {
	return s.listRequests(
		`SELECT `+requestColumns+` FROM requests WHERE task_id = ? ORDER BY requested_at DESC`,
		taskID,
	)
}

// ListRequests returns requests filtered by stored status and/or origin.
func (s *Store) ListRequests(status models.RequestStatus, origin models.RequestOrigin) ([]models.ModificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if origin != "" {
		query += ` AND origin = ?`
		args = append(args, origin)
	}
	query += ` ORDER BY requested_at DESC`
	return s.listRequests(query, args...)
}

// LatestRequestForTask returns the most recent request for a task by
// requested_at; only this one is surfaced as the task's active badge.
func (s *Store) LatestRequestForTask(taskID string) (*models.ModificationRequest, error) {
	req, err := scanRequest(s.db.QueryRow(
		`SELECT `+requestColumns+` FROM requests WHERE task_id = ? ORDER BY requested_at DESC, id DESC LIMIT 1`,
		taskID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest request: %w", err)
	}
	return req, nil
}

func (s *Store) listRequests(query string, args ...interface{}) ([]models.ModificationRequest, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.ModificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

// MarkViewed sets employee_viewed_at once. A second call is a no-op that
// returns the request with the original timestamp. The bool reports
// whether this call was the one that set the timestamp.
func (s *Store) MarkViewed(id string, now time.Time) (*models.ModificationRequest, bool, error) {
	res, err := s.db.Exec(
		`UPDATE requests SET employee_viewed_at = ?, updated_at = ? WHERE id = ? AND employee_viewed_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("mark viewed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("check rows affected: %w", err)
	}

	req, err := s.GetRequest(id)
	if err != nil {
		return nil, false, err
	}
	if req == nil {
		return nil, false, workflow.NotFoundf("request %s", id)
	}
	return req, affected > 0, nil
}

// Decide commits a decision on a pending request. byAdmin selects the
// decision path: admins decide employee-initiated requests, employees
// respond to admin-initiated ones. Effective status is re-checked inside
// the transaction so a decision on an already-expired request fails even
// when the stored status still reads pending.
func (s *Store) Decide(id string, decision models.RequestStatus, note string, byAdmin bool, now time.Time) (*models.ModificationRequest, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := scanRequest(tx.QueryRow(
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("request %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}

	if byAdmin {
		err = workflow.CanDecide(req, now)
	} else {
		err = workflow.CanRespond(req, now)
	}
	if err != nil {
		return nil, err
	}

	noteCol := "decision_note"
	if byAdmin {
		noteCol = "admin_note"
		if decision == models.RequestStatusRejected {
			noteCol = "decision_note"
		}
	}

	res, err := tx.Exec(
		`UPDATE requests SET status = ?, `+noteCol+` = ?, updated_at = ? WHERE id = ? AND status = ?`,
		decision, note, now, id, models.RequestStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		// Row changed between read and write
		return nil, workflow.InvalidStatef("request %s is no longer pending", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	req.Status = decision
	if noteCol == "admin_note" {
		req.AdminNote = note
	} else {
		req.DecisionNote = note
	}
	req.UpdatedAt = now
	return req, nil
}

// ExecuteResult holds the task and request after an execution.
type ExecuteResult struct {
	Task    *models.Task                `json:"task"`
	Request *models.ModificationRequest `json:"request"`
}

// Execute applies an approved request to its task and marks the request
// executed, all in one transaction. finalChanges, when non-nil, replaces
// the originally proposed change set. Executing a request twice fails
// with an invalid-state error; the write happens exactly once.
func (s *Store) Execute(id, adminNote string, finalChanges *models.ProposedChanges, now time.Time) (*ExecuteResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := scanRequest(tx.QueryRow(
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("request %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}

	if err := workflow.CanExecute(req, now); err != nil {
		return nil, err
	}

	task, err := scanTask(tx.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, req.TaskID,
	))
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("task %s", req.TaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	if task.DeletedAt != nil {
		return nil, workflow.InvalidStatef("task %s is already deleted", task.ID)
	}

	changes := req.ProposedChanges
	if finalChanges != nil {
		changes = finalChanges
	}

	switch req.RequestType {
	case models.RequestTypeDelete:
		task.DeletedAt = &now
		_, err = tx.Exec(
			`UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id = ?`,
			now, now, task.ID,
		)
	case models.RequestTypeExtension:
		due := req.RequestedExtension
		if changes != nil && changes.DueDate != nil {
			due = changes.DueDate
		}
		if due == nil {
			return nil, workflow.Validationf("extension request %s has no requested date", req.ID)
		}
		task.DueDate = due
		_, err = tx.Exec(
			`UPDATE tasks SET due_date = ?, updated_at = ? WHERE id = ?`,
			due, now, task.ID,
		)
	default: // edit
		workflow.ApplyChanges(task, changes)
		_, err = tx.Exec(
			`UPDATE tasks SET title = ?, description = ?, category = ?, priority = ?, due_date = ?, updated_at = ? WHERE id = ?`,
			task.Title, task.Description, task.Category, task.Priority, task.DueDate, now, task.ID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("apply changes: %w", err)
	}
	task.UpdatedAt = now

	res, err := tx.Exec(
		`UPDATE requests SET status = ?, admin_note = ?, executed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.RequestStatusExecuted, adminNote, now, now, id, models.RequestStatusApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return nil, workflow.InvalidStatef("request %s is no longer approved", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	req.Status = models.RequestStatusExecuted
	req.AdminNote = adminNote
	req.ExecutedAt = &now
	req.UpdatedAt = now
	return &ExecuteResult{Task: task, Request: req}, nil
}

// ExpireOverdue persists the expired status on pending/approved requests
// whose deadline has passed. The conditional update makes the sweep
// idempotent and safe against a concurrent late respond: whichever write
// lands first wins, the other sees zero rows.
func (s *Store) ExpireOverdue(now time.Time) ([]models.ModificationRequest, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	overdue, err := func() ([]models.ModificationRequest, error) {
		rows, err := tx.Query(
			`SELECT `+requestColumns+` FROM requests
			 WHERE status IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ?`,
			models.RequestStatusPending, models.RequestStatusApproved, now,
		)
		if err != nil {
			return nil, fmt.Errorf("query overdue requests: %w", err)
		}
		defer rows.Close()

		var reqs []models.ModificationRequest
		for rows.Next() {
			req, err := scanRequest(rows)
			if err != nil {
				return nil, fmt.Errorf("scan request: %w", err)
			}
			reqs = append(reqs, *req)
		}
		return reqs, rows.Err()
	}()
	if err != nil {
		return nil, err
	}

	for i := range overdue {
		res, err := tx.Exec(
			`UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
			models.RequestStatusExpired, now, overdue[i].ID,
			models.RequestStatusPending, models.RequestStatusApproved,
		)
		if err != nil {
			return nil, fmt.Errorf("expire request: %w", err)
		}
		if _, err := res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("check rows affected: %w", err)
		}
		overdue[i].Status = models.RequestStatusExpired
		overdue[i].UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return overdue, nil
}

// --- Message Operations ---

// AppendMessage adds a discussion entry. Lock rules are checked inside
// the transaction against the same clock as the append.
func (s *Store) AppendMessage(requestID string, role models.ActorRole, text string, now time.Time) (*models.Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := scanRequest(tx.QueryRow(
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, requestID,
	))
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("request %s", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}

	if err := workflow.CanMessage(req, now); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		SenderRole: role,
		Text:       text,
		CreatedAt:  now,
	}

	res, err := tx.Exec(
		`INSERT INTO messages (id, request_id, sender_role, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.RequestID, msg.SenderRole, msg.Text, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msg.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return msg, nil
}

// ListMessages returns a request's discussion in insertion order.
func (s *Store) ListMessages(requestID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT seq, id, request_id, sender_role, body, created_at FROM messages WHERE request_id = ? ORDER BY seq`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.RequestID, &msg.SenderRole, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// --- Sub-flow Operations ---

// Reassign moves an eligible task to another active employee and clears
// the originating decline/withdrawal condition.
func (s *Store) Reassign(taskID, newEmployeeID string, now time.Time) (*models.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := scanTask(tx.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID,
	))
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("task %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	if task.DeletedAt != nil {
		return nil, workflow.InvalidStatef("task %s is deleted", taskID)
	}

	if err := workflow.CanReassign(task); err != nil {
		return nil, err
	}

	var empStatus models.EmployeeStatus
	err = tx.QueryRow(`SELECT status FROM employees WHERE id = ?`, newEmployeeID).Scan(&empStatus)
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("employee %s", newEmployeeID)
	}
	if err != nil {
		return nil, fmt.Errorf("query employee: %w", err)
	}
	if empStatus != models.EmployeeActive {
		return nil, workflow.Validationf("employee %s is not active", newEmployeeID)
	}

	_, err = tx.Exec(
		`UPDATE tasks SET assigned_to = ?, status = ?, decline_type = NULL, updated_at = ? WHERE id = ?`,
		newEmployeeID, models.TaskStatusAssigned, now, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.AssignedTo = newEmployeeID
	task.Status = models.TaskStatusAssigned
	task.DeclineType = ""
	task.UpdatedAt = now
	return task, nil
}

// Reopen sends a completed task back for correction with a new deadline.
func (s *Store) Reopen(taskID string, reopenDueAt, now time.Time) (*models.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	task, err := scanTask(tx.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID,
	))
	if err == sql.ErrNoRows {
		return nil, workflow.NotFoundf("task %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	if task.DeletedAt != nil {
		return nil, workflow.InvalidStatef("task %s is deleted", taskID)
	}

	if err := workflow.CanReopen(task); err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`UPDATE tasks SET status = ?, reopen_due_at = ?, updated_at = ? WHERE id = ?`,
		models.TaskStatusReopened, reopenDueAt, now, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.Status = models.TaskStatusReopened
	task.ReopenDueAt = &reopenDueAt
	task.UpdatedAt = now
	return task, nil
}

// --- Timeline Operations ---

// AppendEvent writes one activity timeline entry.
func (s *Store) AppendEvent(ev *models.TimelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO task_events (id, task_id, event_type, actor_role, actor_id, detail, inputs_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TaskID, ev.EventType, nullStr(string(ev.ActorRole)),
		nullStr(ev.ActorID), nullStr(ev.Detail), nullStr(ev.InputsHash), ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task event: %w", err)
	}
	return nil
}

// ListEvents returns a task's activity timeline in append order.
func (s *Store) ListEvents(taskID string) ([]models.TimelineEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, event_type, actor_role, actor_id, detail, inputs_hash, created_at
		 FROM task_events WHERE task_id = ? ORDER BY created_at, id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query task events: %w", err)
	}
	defer rows.Close()

	var events []models.TimelineEvent
	for rows.Next() {
		var ev models.TimelineEvent
		var actorRole, actorID, detail, inputsHash sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.EventType, &actorRole, &actorID, &detail, &inputsHash, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		ev.ActorRole = models.ActorRole(actorRole.String)
		ev.ActorID = actorID.String
		ev.Detail = detail.String
		ev.InputsHash = inputsHash.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// OverlayEffective stamps the read-time effective status and returns the
// SLA meta for a request.
func OverlayEffective(req *models.ModificationRequest, now time.Time) *sla.Meta {
	req.EffectiveStatus = sla.EffectiveStatus(req.Status, req.ExpiresAt, now)
	return sla.Evaluate(now, req.ExpiresAt)
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
