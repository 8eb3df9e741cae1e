// Package api provides the HTTP API and service layer for TaskDesk. The
// service owns authorization and the read-time expiry overlay; all
// transition rules live in the workflow package and all writes go through
// the store's transactions.
package api

import (
	"errors"
	"strings"
	"time"

	"github.com/taskdeskhq/taskdesk/internal/audit"
	"github.com/taskdeskhq/taskdesk/internal/auth"
	"github.com/taskdeskhq/taskdesk/internal/config"
	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/sla"
	"github.com/taskdeskhq/taskdesk/internal/store"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

// Service provides the workflow engine operations.
type Service struct {
	store    *store.Store
	recorder *audit.Recorder
	cfg      config.WorkflowConfig
}

// NewService creates a new service.
func NewService(s *store.Store, rec *audit.Recorder, cfg config.WorkflowConfig) *Service {
	return &Service{store: s, recorder: rec, cfg: cfg}
}

// RequestView is a request with its read-time SLA classification.
type RequestView struct {
	*models.ModificationRequest
	SLA *sla.Meta `json:"sla,omitempty"`
}

// TaskView is a task with its latest request badge and reopen SLA meta.
type TaskView struct {
	*models.Task
	LatestRequest *RequestView `json:"latest_request,omitempty"`
	ReopenSLA     *sla.Meta    `json:"reopen_sla,omitempty"`
}

func countError(err error) error {
	if err == nil {
		return nil
	}
	kind := "internal"
	switch {
	case errors.Is(err, workflow.ErrValidation):
		kind = "validation"
	case errors.Is(err, workflow.ErrInvalidState):
		kind = "invalid_state"
	case errors.Is(err, workflow.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, workflow.ErrUnauthorized):
		kind = "unauthorized"
	}
	operationErrors.WithLabelValues(kind).Inc()
	return err
}

func (s *Service) view(req *models.ModificationRequest, now time.Time) *RequestView {
	meta := store.OverlayEffective(req, now)
	return &RequestView{ModificationRequest: req, SLA: meta}
}

// --- Request Operations ---

// CreateRequest opens a modification request. The actor's role must match
// the declared origin: admins open admin-initiated requests, employees
// open employee-initiated ones.
func (s *Service) CreateRequest(actor auth.Actor, in workflow.CreateInput) (*RequestView, error) {
	switch in.Origin {
	case models.OriginAdmin:
		if err := actor.RequireAdmin(); err != nil {
			return nil, countError(err)
		}
	case models.OriginEmployee:
		if err := actor.RequireEmployee(); err != nil {
			return nil, countError(err)
		}
	}

	if in.SLAHours == 0 {
		in.SLAHours = s.cfg.DefaultSLAHours
	}
	if err := workflow.ValidateCreate(in); err != nil {
		return nil, countError(err)
	}

	now := time.Now().UTC()
	req, err := s.store.CreateRequest(in, now)
	if err != nil {
		return nil, countError(err)
	}

	requestsCreated.WithLabelValues(string(req.Origin), string(req.RequestType)).Inc()
	s.recorder.Record(req.TaskID, models.EventRequestCreated, actor.Role, actor.ID,
		in, string(req.RequestType)+" request opened")
	return s.view(req, now), nil
}

// GetRequest returns a request with effective status and SLA meta.
func (s *Service) GetRequest(id string) (*RequestView, error) {
	req, err := s.store.GetRequest(id)
	if err != nil {
		return nil, countError(err)
	}
	if req == nil {
		return nil, countError(workflow.NotFoundf("request %s", id))
	}
	return s.view(req, time.Now().UTC()), nil
}

// ListTaskRequests returns all requests for a task, newest first, each
// with the expiry overlay applied.
func (s *Service) ListTaskRequests(taskID string) ([]RequestView, error) {
	reqs, err := s.store.ListRequestsForTask(taskID)
	if err != nil {
		return nil, countError(err)
	}
	return s.views(reqs), nil
}

// ListRequests returns the request queue, optionally filtered.
func (s *Service) ListRequests(status models.RequestStatus, origin models.RequestOrigin) ([]RequestView, error) {
	reqs, err := s.store.ListRequests(status, origin)
	if err != nil {
		return nil, countError(err)
	}
	return s.views(reqs), nil
}

func (s *Service) views(reqs []models.ModificationRequest) []RequestView {
	now := time.Now().UTC()
	out := make([]RequestView, 0, len(reqs))
	for i := range reqs {
		out = append(out, *s.view(&reqs[i], now))
	}
	return out
}

// MarkViewed records the employee's first look at an admin-initiated
// request. Idempotent: repeat calls return the original timestamp.
func (s *Service) MarkViewed(actor auth.Actor, id string) (*RequestView, error) {
	if err := actor.RequireEmployee(); err != nil {
		return nil, countError(err)
	}

	existing, err := s.store.GetRequest(id)
	if err != nil {
		return nil, countError(err)
	}
	if existing == nil {
		return nil, countError(workflow.NotFoundf("request %s", id))
	}
	if existing.Origin != models.OriginAdmin {
		return nil, countError(workflow.InvalidStatef("viewed tracking applies to admin-initiated requests"))
	}

	now := time.Now().UTC()
	req, firstView, err := s.store.MarkViewed(id, now)
	if err != nil {
		return nil, countError(err)
	}
	if firstView {
		s.recorder.Record(req.TaskID, models.EventRequestViewed, actor.Role, actor.ID,
			map[string]string{"request_id": id}, "")
	}
	return s.view(req, now), nil
}

// PostMessage appends a discussion entry under the sender's role.
func (s *Service) PostMessage(actor auth.Actor, requestID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, countError(workflow.Validationf("message text is required"))
	}
	now := time.Now().UTC()
	msg, err := s.store.AppendMessage(requestID, actor.Role, text, now)
	if err != nil {
		return nil, countError(err)
	}
	return msg, nil
}

// ListMessages returns a request's discussion thread in display order.
func (s *Service) ListMessages(requestID string) ([]models.Message, error) {
	req, err := s.store.GetRequest(requestID)
	if err != nil {
		return nil, countError(err)
	}
	if req == nil {
		return nil, countError(workflow.NotFoundf("request %s", requestID))
	}
	msgs, err := s.store.ListMessages(requestID)
	if err != nil {
		return nil, countError(err)
	}
	return msgs, nil
}

// Respond commits the employee's decision on an admin-initiated request.
func (s *Service) Respond(actor auth.Actor, id string, decision models.RequestStatus, note string) (*RequestView, error) {
	if err := actor.RequireEmployee(); err != nil {
		return nil, countError(err)
	}
	if err := workflow.ValidateDecision(decision, note); err != nil {
		return nil, countError(err)
	}

	now := time.Now().UTC()
	req, err := s.store.Decide(id, decision, note, false, now)
	if err != nil {
		return nil, countError(err)
	}
	s.recordDecision(req, actor, note)
	return s.view(req, now), nil
}

// ApproveEmployeeRequest commits the admin's approval of an
// employee-initiated request. The admin note is mandatory.
func (s *Service) ApproveEmployeeRequest(actor auth.Actor, id, adminNote string) (*RequestView, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if err := workflow.ValidateDecision(models.RequestStatusApproved, adminNote); err != nil {
		return nil, countError(err)
	}

	now := time.Now().UTC()
	req, err := s.store.Decide(id, models.RequestStatusApproved, adminNote, true, now)
	if err != nil {
		return nil, countError(err)
	}
	s.recordDecision(req, actor, adminNote)
	return s.view(req, now), nil
}

// RejectEmployeeRequest commits the admin's rejection of an
// employee-initiated request. Rejection is final.
func (s *Service) RejectEmployeeRequest(actor auth.Actor, id, reason string) (*RequestView, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if err := workflow.ValidateDecision(models.RequestStatusRejected, reason); err != nil {
		return nil, countError(err)
	}

	now := time.Now().UTC()
	req, err := s.store.Decide(id, models.RequestStatusRejected, reason, true, now)
	if err != nil {
		return nil, countError(err)
	}
	s.recordDecision(req, actor, reason)
	return s.view(req, now), nil
}

func (s *Service) recordDecision(req *models.ModificationRequest, actor auth.Actor, note string) {
	requestTransitions.WithLabelValues(string(req.Status)).Inc()
	eventType := models.EventRequestApproved
	if req.Status == models.RequestStatusRejected {
		eventType = models.EventRequestRejected
	}
	s.recorder.Record(req.TaskID, eventType, actor.Role, actor.ID,
		map[string]string{"request_id": req.ID, "note": note}, "")
}

// Execute applies an approved request to its task. Admin only; the final
// change set may diverge from the proposal.
func (s *Service) Execute(actor auth.Actor, id, adminNote string, finalChanges *models.ProposedChanges) (*store.ExecuteResult, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if strings.TrimSpace(adminNote) == "" {
		return nil, countError(workflow.Validationf("admin_note is required for execution"))
	}

	now := time.Now().UTC()
	res, err := s.store.Execute(id, adminNote, finalChanges, now)
	if err != nil {
		return nil, countError(err)
	}

	requestTransitions.WithLabelValues(string(models.RequestStatusExecuted)).Inc()
	s.recorder.Record(res.Task.ID, models.EventRequestExecuted, actor.Role, actor.ID,
		map[string]interface{}{"request_id": id, "final_changes": finalChanges}, adminNote)
	store.OverlayEffective(res.Request, now)
	return res, nil
}

// --- Sub-flow Operations ---

// Reassign hands an eligible task to another active employee.
func (s *Service) Reassign(actor auth.Actor, taskID, newEmployeeID, reason, handoverNotes string) (*models.Task, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, countError(workflow.Validationf("reason is required"))
	}
	if newEmployeeID == "" {
		return nil, countError(workflow.Validationf("new_employee_id is required"))
	}

	now := time.Now().UTC()
	task, err := s.store.Reassign(taskID, newEmployeeID, now)
	if err != nil {
		return nil, countError(err)
	}

	s.recorder.Record(taskID, models.EventTaskReassigned, actor.Role, actor.ID,
		map[string]string{"new_employee_id": newEmployeeID, "reason": reason, "handover_notes": handoverNotes},
		"reassigned to "+newEmployeeID)
	return task, nil
}

// Reopen sends a completed task back for correction. The reopen deadline
// is computed from the configured policy and consumed through the same
// SLA evaluator as request deadlines.
func (s *Service) Reopen(actor auth.Actor, taskID, reason string) (*models.Task, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, countError(workflow.Validationf("reason is required"))
	}

	now := time.Now().UTC()
	reopenDue := now.Add(time.Duration(s.cfg.ReopenSLAHours) * time.Hour)
	task, err := s.store.Reopen(taskID, reopenDue, now)
	if err != nil {
		return nil, countError(err)
	}

	s.recorder.Record(taskID, models.EventTaskReopened, actor.Role, actor.ID,
		map[string]string{"reason": reason}, "sent back for correction")
	return task, nil
}

// --- Task Operations ---

// CreateTask creates a task assigned to an active employee. Admin only.
func (s *Service) CreateTask(actor auth.Actor, in store.TaskInput) (*models.Task, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, countError(workflow.Validationf("title is required"))
	}
	if in.AssignedTo != "" {
		emp, err := s.store.GetEmployee(in.AssignedTo)
		if err != nil {
			return nil, countError(err)
		}
		if emp == nil {
			return nil, countError(workflow.NotFoundf("employee %s", in.AssignedTo))
		}
		if emp.Status != models.EmployeeActive {
			return nil, countError(workflow.Validationf("employee %s is not active", in.AssignedTo))
		}
	}

	task, err := s.store.CreateTask(in)
	if err != nil {
		return nil, countError(err)
	}
	s.recorder.Record(task.ID, models.EventTaskCreated, actor.Role, actor.ID,
		map[string]string{"title": in.Title, "assigned_to": in.AssignedTo}, "")
	return task, nil
}

// GetTask returns a task with its latest request badge and reopen SLA.
func (s *Service) GetTask(id string) (*TaskView, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, countError(err)
	}
	if task == nil {
		return nil, countError(workflow.NotFoundf("task %s", id))
	}

	now := time.Now().UTC()
	view := &TaskView{Task: task}
	if task.Status == models.TaskStatusReopened {
		view.ReopenSLA = sla.Evaluate(now, task.ReopenDueAt)
	}

	latest, err := s.store.LatestRequestForTask(id)
	if err != nil {
		return nil, countError(err)
	}
	if latest != nil {
		view.LatestRequest = s.view(latest, now)
	}
	return view, nil
}

// ListTasks returns non-deleted tasks, optionally filtered by status.
func (s *Service) ListTasks(status string) ([]models.Task, error) {
	tasks, err := s.store.ListTasks(status)
	if err != nil {
		return nil, countError(err)
	}
	return tasks, nil
}

// SetTaskStatus updates the externally-owned task status. Admin only; the
// engine just checks the value is a known one.
func (s *Service) SetTaskStatus(actor auth.Actor, id string, status models.TaskStatus, declineType models.DeclineType) (*models.Task, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if !models.ValidTaskStatus(status) {
		return nil, countError(workflow.Validationf("unknown task status %q", status))
	}
	if err := s.store.UpdateTaskStatus(id, status, declineType); err != nil {
		return nil, countError(err)
	}
	s.recorder.Record(id, models.EventTaskStatusSet, actor.Role, actor.ID,
		map[string]string{"status": string(status)}, "")
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, countError(err)
	}
	return task, nil
}

// Timeline returns a task's activity feed.
func (s *Service) Timeline(taskID string) ([]models.TimelineEvent, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, countError(err)
	}
	if task == nil {
		return nil, countError(workflow.NotFoundf("task %s", taskID))
	}
	events, err := s.store.ListEvents(taskID)
	if err != nil {
		return nil, countError(err)
	}
	return events, nil
}

// --- Employee Operations ---

// ListEmployees returns directory entries, optionally only active ones.
func (s *Service) ListEmployees(status models.EmployeeStatus) ([]models.Employee, error) {
	emps, err := s.store.ListEmployees(status)
	if err != nil {
		return nil, countError(err)
	}
	return emps, nil
}

// CreateEmployee adds a directory entry. Admin only.
func (s *Service) CreateEmployee(actor auth.Actor, name, email string, status models.EmployeeStatus) (*models.Employee, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, countError(err)
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return nil, countError(workflow.Validationf("name and email are required"))
	}
	emp, err := s.store.CreateEmployee(name, email, status)
	if err != nil {
		return nil, countError(err)
	}
	return emp, nil
}
