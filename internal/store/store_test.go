package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTask(t *testing.T, s *Store) (*models.Task, *models.Employee) {
	t.Helper()
	emp, err := s.CreateEmployee("Dana Smith", "dana@example.com", models.EmployeeActive)
	if err != nil {
		t.Fatalf("CreateEmployee failed: %v", err)
	}
	task, err := s.CreateTask(TaskInput{
		Title:      "Prepare Q3 report",
		Priority:   "high",
		AssignedTo: emp.ID,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task, emp
}

func editInput(taskID string) workflow.CreateInput {
	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	return workflow.CreateInput{
		TaskID:          taskID,
		Origin:          models.OriginAdmin,
		RequestType:     models.RequestTypeEdit,
		Reason:          "Please fix the due date for Q3",
		SLAHours:        24,
		ProposedChanges: &models.ProposedChanges{DueDate: &due},
	}
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	task, emp := seedTask(t, s)

	if task.Status != models.TaskStatusAssigned {
		t.Errorf("Expected status assigned, got %s", task.Status)
	}

	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Prepare Q3 report" || got.AssignedTo != emp.ID {
		t.Errorf("Unexpected task: %+v", got)
	}

	tasks, err := s.ListTasks("")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	if err := s.UpdateTaskStatus(task.ID, models.TaskStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	got, _ = s.GetTask(task.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}

	err = s.UpdateTaskStatus("missing", models.TaskStatusCompleted, "")
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEmployeeDirectory(t *testing.T) {
	s := newTestStore(t)
	s.CreateEmployee("Active A", "a@example.com", models.EmployeeActive)
	s.CreateEmployee("Inactive B", "b@example.com", models.EmployeeInactive)

	active, err := s.ListEmployees(models.EmployeeActive)
	if err != nil {
		t.Fatalf("ListEmployees failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Active A" {
		t.Errorf("Expected only the active employee, got %+v", active)
	}

	all, _ := s.ListEmployees("")
	if len(all) != 2 {
		t.Errorf("Expected 2 employees, got %d", len(all))
	}
}

func TestCreateRequest_ComputesExpiry(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	req, err := s.CreateRequest(editInput(task.ID), t0)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.Status != models.RequestStatusPending {
		t.Errorf("Expected pending, got %s", req.Status)
	}
	want := t0.Add(24 * time.Hour)
	if req.ExpiresAt == nil || !req.ExpiresAt.Equal(want) {
		t.Errorf("Expected expires_at %v, got %v", want, req.ExpiresAt)
	}

	got, err := s.GetRequest(req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.ProposedChanges == nil || got.ProposedChanges.DueDate == nil {
		t.Fatal("Expected proposed changes to round-trip")
	}
}

func TestCreateRequest_SingleOpenPerScope(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	if _, err := s.CreateRequest(editInput(task.ID), now); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	// Second change-scope request is blocked while the first is open.
	_, err := s.CreateRequest(editInput(task.ID), now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for second open request, got %v", err)
	}

	// An extension occupies a different scope and is allowed.
	ext := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	_, err = s.CreateRequest(workflow.CreateInput{
		TaskID:             task.ID,
		Origin:             models.OriginEmployee,
		RequestType:        models.RequestTypeExtension,
		Reason:             "Blocked on vendor",
		SLAHours:           24,
		RequestedExtension: &ext,
	}, now)
	if err != nil {
		t.Errorf("Expected extension request in its own scope to succeed: %v", err)
	}

	// Unknown task
	_, err = s.CreateRequest(editInput("missing"), now)
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateRequest_ExpiredOpenDoesNotBlock(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)

	t0 := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := s.CreateRequest(editInput(task.ID), t0); err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	// The first request's stored status is still pending but its deadline
	// has passed, so a new request of the same scope may open.
	if _, err := s.CreateRequest(editInput(task.ID), time.Now().UTC()); err != nil {
		t.Errorf("Expected create after expiry to succeed: %v", err)
	}
}

func TestMarkViewed_Idempotent(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, _ := s.CreateRequest(editInput(task.ID), now)

	first, set, err := s.MarkViewed(req.ID, now)
	if err != nil {
		t.Fatalf("MarkViewed failed: %v", err)
	}
	if first.EmployeeViewedAt == nil {
		t.Fatal("Expected employee_viewed_at to be set")
	}
	if !set {
		t.Error("Expected the first call to report setting the timestamp")
	}

	second, set, err := s.MarkViewed(req.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second MarkViewed failed: %v", err)
	}
	if !second.EmployeeViewedAt.Equal(*first.EmployeeViewedAt) {
		t.Errorf("Expected viewed timestamp unchanged, got %v then %v",
			first.EmployeeViewedAt, second.EmployeeViewedAt)
	}
	if set {
		t.Error("Expected the repeat call to report no write")
	}

	if _, _, err := s.MarkViewed("missing", now); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDecide_RespondPath(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, _ := s.CreateRequest(editInput(task.ID), now)

	decided, err := s.Decide(req.ID, models.RequestStatusApproved, "ok", false, now)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decided.Status != models.RequestStatusApproved {
		t.Errorf("Expected approved, got %s", decided.Status)
	}
	if decided.DecisionNote != "ok" {
		t.Errorf("Expected decision note 'ok', got %q", decided.DecisionNote)
	}

	// Rejecting/deciding an already-decided request fails.
	_, err = s.Decide(req.ID, models.RequestStatusRejected, "no", false, now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second decision, got %v", err)
	}
}

func TestDecide_ExpiredRequestRejected(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)

	t0 := time.Now().UTC().Add(-48 * time.Hour)
	req, _ := s.CreateRequest(editInput(task.ID), t0)

	// Stored status is still pending, but the deadline has passed.
	_, err := s.Decide(req.ID, models.RequestStatusApproved, "ok", false, time.Now().UTC())
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState responding to expired request, got %v", err)
	}
}

func TestDecide_AdminPathOnEmployeeRequest(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	ext := now.Add(7 * 24 * time.Hour)
	req, err := s.CreateRequest(workflow.CreateInput{
		TaskID:             task.ID,
		Origin:             models.OriginEmployee,
		RequestType:        models.RequestTypeExtension,
		Reason:             "Blocked on vendor",
		SLAHours:           48,
		RequestedExtension: &ext,
	}, now)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	// Employee respond path is invalid on an employee-initiated request.
	_, err = s.Decide(req.ID, models.RequestStatusApproved, "ok", false, now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for respond on employee request, got %v", err)
	}

	decided, err := s.Decide(req.ID, models.RequestStatusApproved, "granted", true, now)
	if err != nil {
		t.Fatalf("Admin decide failed: %v", err)
	}
	if decided.AdminNote != "granted" {
		t.Errorf("Expected admin note 'granted', got %q", decided.AdminNote)
	}
}

func TestExecute_EditAppliesChanges(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, _ := s.CreateRequest(editInput(task.ID), now)
	s.Decide(req.ID, models.RequestStatusApproved, "ok", false, now)

	res, err := s.Execute(req.ID, "done", nil, now)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Request.Status != models.RequestStatusExecuted {
		t.Errorf("Expected executed, got %s", res.Request.Status)
	}
	want := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if res.Task.DueDate == nil || !res.Task.DueDate.Equal(want) {
		t.Errorf("Expected task due date %v, got %v", want, res.Task.DueDate)
	}

	// Execute writes exactly once.
	_, err = s.Execute(req.ID, "again", nil, now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on re-execution, got %v", err)
	}
}

func TestExecute_FinalChangesOverrideProposal(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, _ := s.CreateRequest(editInput(task.ID), now)
	s.Decide(req.ID, models.RequestStatusApproved, "ok", false, now)

	finalDue := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	res, err := s.Execute(req.ID, "adjusted before commit", &models.ProposedChanges{DueDate: &finalDue}, now)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Task.DueDate == nil || !res.Task.DueDate.Equal(finalDue) {
		t.Errorf("Expected final due date %v, got %v", finalDue, res.Task.DueDate)
	}
}

func TestExecute_RequiresApproved(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, _ := s.CreateRequest(editInput(task.ID), now)

	_, err := s.Execute(req.ID, "done", nil, now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState executing pending request, got %v", err)
	}
}

func TestExecute_DeleteSoftDeletesTask(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, err := s.CreateRequest(workflow.CreateInput{
		TaskID:      task.ID,
		Origin:      models.OriginAdmin,
		RequestType: models.RequestTypeDelete,
		Reason:      "Duplicate of an older task",
		ImpactNote:  "No open work depends on it",
		SLAHours:    24,
	}, now)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	s.Decide(req.ID, models.RequestStatusApproved, "ok", false, now)

	res, err := s.Execute(req.ID, "removing", nil, now)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Task.DeletedAt == nil {
		t.Error("Expected task to be soft-deleted")
	}

	tasks, _ := s.ListTasks("")
	if len(tasks) != 0 {
		t.Errorf("Expected soft-deleted task hidden from list, got %d", len(tasks))
	}
	got, _ := s.GetTask(task.ID)
	if got == nil || got.DeletedAt == nil {
		t.Error("Expected GetTask to still return the soft-deleted row")
	}
}

func TestExecute_ExtensionUpdatesDueDate(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	ext := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	req, _ := s.CreateRequest(workflow.CreateInput{
		TaskID:             task.ID,
		Origin:             models.OriginEmployee,
		RequestType:        models.RequestTypeExtension,
		Reason:             "Blocked on vendor",
		SLAHours:           48,
		RequestedExtension: &ext,
	}, now)
	s.Decide(req.ID, models.RequestStatusApproved, "granted", true, now)

	res, err := s.Execute(req.ID, "extended", nil, now)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Task.DueDate == nil || !res.Task.DueDate.Equal(ext) {
		t.Errorf("Expected due date %v, got %v", ext, res.Task.DueDate)
	}
}

func TestExpireOverdue(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)

	t0 := time.Now().UTC().Add(-48 * time.Hour)
	req, _ := s.CreateRequest(editInput(task.ID), t0)

	now := time.Now().UTC()
	expired, err := s.ExpireOverdue(now)
	if err != nil {
		t.Fatalf("ExpireOverdue failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != req.ID {
		t.Fatalf("Expected 1 expired request, got %+v", expired)
	}

	got, _ := s.GetRequest(req.ID)
	if got.Status != models.RequestStatusExpired {
		t.Errorf("Expected stored status expired, got %s", got.Status)
	}

	// Sweep is idempotent.
	expired, err = s.ExpireOverdue(now)
	if err != nil {
		t.Fatalf("Second ExpireOverdue failed: %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("Expected no requests on second sweep, got %d", len(expired))
	}
}

func TestMessages_AppendOnlyAndLocked(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	req, _ := s.CreateRequest(editInput(task.ID), now)

	m1, err := s.AppendMessage(req.ID, models.RoleEmployee, "what changed?", now)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	m2, err := s.AppendMessage(req.ID, models.RoleAdmin, "the due date", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if m2.Seq <= m1.Seq {
		t.Errorf("Expected increasing seq, got %d then %d", m1.Seq, m2.Seq)
	}

	msgs, err := s.ListMessages(req.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "what changed?" {
		t.Errorf("Expected insertion order preserved, got %+v", msgs)
	}

	// Lock after rejection.
	s.Decide(req.ID, models.RequestStatusRejected, "not now", false, now)
	_, err = s.AppendMessage(req.ID, models.RoleAdmin, "still there?", now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState messaging rejected request, got %v", err)
	}
}

func TestLatestRequestForTask(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)

	t0 := time.Now().UTC().Add(-72 * time.Hour)
	first, _ := s.CreateRequest(editInput(task.ID), t0)
	s.Decide(first.ID, models.RequestStatusRejected, "no", false, t0)

	second, _ := s.CreateRequest(editInput(task.ID), t0.Add(time.Hour))

	latest, err := s.LatestRequestForTask(task.ID)
	if err != nil {
		t.Fatalf("LatestRequestForTask failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Expected latest request %s, got %s", second.ID, latest.ID)
	}
}

func TestReassign(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()

	target, _ := s.CreateEmployee("Robin Vega", "robin@example.com", models.EmployeeActive)
	inactive, _ := s.CreateEmployee("Gone Person", "gone@example.com", models.EmployeeInactive)

	// Not eligible while assigned.
	_, err := s.Reassign(task.ID, target.ID, now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState reassigning assigned task, got %v", err)
	}

	// Completed tasks are never eligible.
	s.UpdateTaskStatus(task.ID, models.TaskStatusCompleted, "")
	if _, err := s.Reassign(task.ID, target.ID, now); !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState reassigning completed task, got %v", err)
	}

	s.UpdateTaskStatus(task.ID, models.TaskStatusWithdrawn, "")

	// Inactive target is rejected.
	if _, err := s.Reassign(task.ID, inactive.ID, now); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("Expected ErrValidation for inactive employee, got %v", err)
	}

	got, err := s.Reassign(task.ID, target.ID, now)
	if err != nil {
		t.Fatalf("Reassign failed: %v", err)
	}
	if got.AssignedTo != target.ID || got.Status != models.TaskStatusAssigned {
		t.Errorf("Unexpected task after reassign: %+v", got)
	}
	if got.DeclineType != "" {
		t.Errorf("Expected decline type cleared, got %s", got.DeclineType)
	}
}

func TestReassign_DeclinedWithAssignmentDecline(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()
	target, _ := s.CreateEmployee("Robin Vega", "robin@example.com", models.EmployeeActive)

	s.UpdateTaskStatus(task.ID, models.TaskStatusDeclined, models.DeclineTypeAssignment)
	if _, err := s.Reassign(task.ID, target.ID, now); err != nil {
		t.Errorf("Expected reassign of assignment-declined task to succeed: %v", err)
	}
}

func TestReopen(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)
	now := time.Now().UTC()
	due := now.Add(48 * time.Hour)

	_, err := s.Reopen(task.ID, due, now)
	if !errors.Is(err, workflow.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState reopening non-completed task, got %v", err)
	}

	s.UpdateTaskStatus(task.ID, models.TaskStatusCompleted, "")
	got, err := s.Reopen(task.ID, due, now)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if got.Status != models.TaskStatusReopened {
		t.Errorf("Expected reopened, got %s", got.Status)
	}
	if got.ReopenDueAt == nil || !got.ReopenDueAt.Equal(due) {
		t.Errorf("Expected reopen due %v, got %v", due, got.ReopenDueAt)
	}
}

func TestTimeline(t *testing.T) {
	s := newTestStore(t)
	task, _ := seedTask(t, s)

	ev := &models.TimelineEvent{
		TaskID:    task.ID,
		EventType: models.EventRequestCreated,
		ActorRole: models.RoleAdmin,
		Detail:    "edit request opened",
	}
	if err := s.AppendEvent(ev); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	events, err := s.ListEvents(task.ID)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.EventRequestCreated {
		t.Errorf("Unexpected events: %+v", events)
	}
}
