// Package workflow holds the transition rules for the task-modification
// negotiation: requester-initiated proposals, counterpart decisions, SLA
// expiry, and admin execution. The rules are pure functions over domain
// values; the store applies them inside its transactions and the API
// layer stays a thin caller.
package workflow

import (
	"strings"
	"time"

	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/sla"
)

// SLA bounds and the minimum justification length for admin-initiated
// edit/delete requests.
const (
	MinSLAHours  = 1
	MaxSLAHours  = 168
	MinReasonLen = 10
)

// CreateInput carries the fields needed to open a modification request.
type CreateInput struct {
	TaskID             string
	Origin             models.RequestOrigin
	RequestType        models.RequestType
	Reason             string
	ImpactNote         string
	SLAHours           int
	ProposedChanges    *models.ProposedChanges
	RequestedExtension *time.Time
}

// ValidateCreate checks a create request before any state is touched.
func ValidateCreate(in CreateInput) error {
	switch in.Origin {
	case models.OriginAdmin, models.OriginEmployee:
	default:
		return Validationf("unknown origin %q", in.Origin)
	}
	switch in.RequestType {
	case models.RequestTypeEdit, models.RequestTypeDelete, models.RequestTypeExtension:
	default:
		return Validationf("unknown request type %q", in.RequestType)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Validationf("reason is required")
	}
	if in.SLAHours < MinSLAHours || in.SLAHours > MaxSLAHours {
		return Validationf("sla_hours must be between %d and %d", MinSLAHours, MaxSLAHours)
	}

	switch in.RequestType {
	case models.RequestTypeEdit:
		if in.ProposedChanges.Empty() {
			return Validationf("edit request requires proposed_changes")
		}
		if in.Origin == models.OriginAdmin && len(strings.TrimSpace(in.Reason)) < MinReasonLen {
			return Validationf("reason must be at least %d characters", MinReasonLen)
		}
	case models.RequestTypeDelete:
		if len(strings.TrimSpace(in.ImpactNote)) < MinReasonLen {
			return Validationf("delete request requires an impact_note of at least %d characters", MinReasonLen)
		}
		if in.Origin == models.OriginAdmin && len(strings.TrimSpace(in.Reason)) < MinReasonLen {
			return Validationf("reason must be at least %d characters", MinReasonLen)
		}
	case models.RequestTypeExtension:
		if in.RequestedExtension == nil {
			return Validationf("extension request requires a requested_extension date")
		}
	}
	return nil
}

// CanRespond checks the employee decision path: only admin-initiated
// requests whose effective status is still pending accept a decision.
// Expiry is re-evaluated here so a late respond loses to the deadline
// even when the stored status still reads pending.
func CanRespond(req *models.ModificationRequest, now time.Time) error {
	if req.Origin != models.OriginAdmin {
		return InvalidStatef("request %s is employee-initiated; use the admin decision path", req.ID)
	}
	return requirePending(req, now)
}

// CanDecide checks the admin decision path on employee-initiated requests.
func CanDecide(req *models.ModificationRequest, now time.Time) error {
	if req.Origin != models.OriginEmployee {
		return InvalidStatef("request %s is admin-initiated; the employee responds to it", req.ID)
	}
	return requirePending(req, now)
}

func requirePending(req *models.ModificationRequest, now time.Time) error {
	eff := sla.EffectiveStatus(req.Status, req.ExpiresAt, now)
	if eff != models.RequestStatusPending {
		return InvalidStatef("request %s is %s, decisions require pending", req.ID, eff)
	}
	return nil
}

// ValidateDecision checks the decision value and its mandatory note.
func ValidateDecision(decision models.RequestStatus, note string) error {
	if decision != models.RequestStatusApproved && decision != models.RequestStatusRejected {
		return Validationf("decision must be approved or rejected, got %q", decision)
	}
	if strings.TrimSpace(note) == "" {
		return Validationf("a note is required with the decision")
	}
	return nil
}

// CanExecute checks that execution is valid: effective status must be
// approved. An already-executed request fails here rather than being
// silently repeated; execute writes exactly once.
func CanExecute(req *models.ModificationRequest, now time.Time) error {
	eff := sla.EffectiveStatus(req.Status, req.ExpiresAt, now)
	if eff != models.RequestStatusApproved {
		return InvalidStatef("request %s is %s, execute requires approved", req.ID, eff)
	}
	return nil
}

// CanMessage checks whether the discussion thread still accepts entries.
// Terminal and expired requests are locked for audit integrity.
func CanMessage(req *models.ModificationRequest, now time.Time) error {
	eff := sla.EffectiveStatus(req.Status, req.ExpiresAt, now)
	if eff.IsTerminal() {
		return InvalidStatef("request %s is %s, discussion is locked", req.ID, eff)
	}
	return nil
}

// ApplyChanges folds a partial change set into a task. Nil fields leave
// the task untouched.
func ApplyChanges(task *models.Task, changes *models.ProposedChanges) {
	if changes == nil {
		return
	}
	if changes.Title != nil {
		task.Title = *changes.Title
	}
	if changes.Description != nil {
		task.Description = *changes.Description
	}
	if changes.Category != nil {
		task.Category = *changes.Category
	}
	if changes.Priority != nil {
		task.Priority = *changes.Priority
	}
	if changes.DueDate != nil {
		task.DueDate = changes.DueDate
	}
}

// CanReassign checks the reassignment source states: withdrawn tasks, or
// declines without a type or with a plain assignment decline.
func CanReassign(task *models.Task) error {
	switch task.Status {
	case models.TaskStatusWithdrawn:
		return nil
	case models.TaskStatusDeclined:
		if task.DeclineType == "" || task.DeclineType == models.DeclineTypeAssignment {
			return nil
		}
		return InvalidStatef("task %s was declined with type %s and cannot be reassigned", task.ID, task.DeclineType)
	}
	return InvalidStatef("task %s is %s, reassignment requires withdrawn or declined_by_employee", task.ID, task.Status)
}

// CanReopen checks that only completed tasks can be sent back.
func CanReopen(task *models.Task) error {
	if task.Status != models.TaskStatusCompleted {
		return InvalidStatef("task %s is %s, reopen requires completed", task.ID, task.Status)
	}
	return nil
}
