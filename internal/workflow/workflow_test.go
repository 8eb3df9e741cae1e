package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/taskdeskhq/taskdesk/internal/models"
)

func strPtr(s string) *string { return &s }

func TestValidateCreate(t *testing.T) {
	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	edit := &models.ProposedChanges{DueDate: &due}

	cases := []struct {
		name    string
		in      CreateInput
		wantErr bool
	}{
		{
			name: "valid admin edit",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeEdit,
				Reason: "Please fix the due date for Q3", SLAHours: 24, ProposedChanges: edit,
			},
		},
		{
			name: "admin edit reason too short",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeEdit,
				Reason: "short", SLAHours: 24, ProposedChanges: edit,
			},
			wantErr: true,
		},
		{
			name: "edit without changes",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeEdit,
				Reason: "Please fix the due date for Q3", SLAHours: 24,
			},
			wantErr: true,
		},
		{
			name: "delete without impact note",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeDelete,
				Reason: "Duplicate of an older task", SLAHours: 24,
			},
			wantErr: true,
		},
		{
			name: "valid admin delete",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeDelete,
				Reason: "Duplicate of an older task", ImpactNote: "No open work depends on it",
				SLAHours: 24,
			},
		},
		{
			name: "extension without date",
			in: CreateInput{
				Origin: models.OriginEmployee, RequestType: models.RequestTypeExtension,
				Reason: "Blocked on vendor", SLAHours: 24,
			},
			wantErr: true,
		},
		{
			name: "valid employee extension",
			in: CreateInput{
				Origin: models.OriginEmployee, RequestType: models.RequestTypeExtension,
				Reason: "Blocked on vendor", SLAHours: 24, RequestedExtension: &due,
			},
		},
		{
			name: "sla hours too low",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeEdit,
				Reason: "Please fix the due date for Q3", SLAHours: 0, ProposedChanges: edit,
			},
			wantErr: true,
		},
		{
			name: "sla hours too high",
			in: CreateInput{
				Origin: models.OriginAdmin, RequestType: models.RequestTypeEdit,
				Reason: "Please fix the due date for Q3", SLAHours: 169, ProposedChanges: edit,
			},
			wantErr: true,
		},
		{
			name: "missing reason",
			in: CreateInput{
				Origin: models.OriginEmployee, RequestType: models.RequestTypeExtension,
				Reason: "  ", SLAHours: 24, RequestedExtension: &due,
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		err := ValidateCreate(tc.in)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.wantErr && err != nil && !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func pendingRequest(origin models.RequestOrigin, expiresIn time.Duration, now time.Time) *models.ModificationRequest {
	expires := now.Add(expiresIn)
	return &models.ModificationRequest{
		ID:        "req-1",
		Origin:    origin,
		Status:    models.RequestStatusPending,
		ExpiresAt: &expires,
	}
}

func TestCanRespond(t *testing.T) {
	now := time.Now().UTC()

	if err := CanRespond(pendingRequest(models.OriginAdmin, time.Hour, now), now); err != nil {
		t.Errorf("Expected respond allowed on pending admin request: %v", err)
	}

	// wrong origin
	err := CanRespond(pendingRequest(models.OriginEmployee, time.Hour, now), now)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for employee-initiated request, got %v", err)
	}

	// expired even though stored status is pending
	err = CanRespond(pendingRequest(models.OriginAdmin, -time.Minute, now), now)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for expired request, got %v", err)
	}

	// already decided
	req := pendingRequest(models.OriginAdmin, time.Hour, now)
	req.Status = models.RequestStatusRejected
	if err := CanRespond(req, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for rejected request, got %v", err)
	}
}

func TestCanDecide(t *testing.T) {
	now := time.Now().UTC()

	if err := CanDecide(pendingRequest(models.OriginEmployee, time.Hour, now), now); err != nil {
		t.Errorf("Expected decide allowed on pending employee request: %v", err)
	}
	if err := CanDecide(pendingRequest(models.OriginAdmin, time.Hour, now), now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState for admin-initiated request, got %v", err)
	}
}

func TestValidateDecision(t *testing.T) {
	if err := ValidateDecision(models.RequestStatusApproved, "ok"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := ValidateDecision(models.RequestStatusApproved, " "); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for empty note, got %v", err)
	}
	if err := ValidateDecision(models.RequestStatusExecuted, "ok"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for bad decision value, got %v", err)
	}
}

func TestCanExecute(t *testing.T) {
	now := time.Now().UTC()

	req := pendingRequest(models.OriginAdmin, time.Hour, now)
	req.Status = models.RequestStatusApproved
	if err := CanExecute(req, now); err != nil {
		t.Errorf("Expected execute allowed on approved request: %v", err)
	}

	// every non-approved effective status fails
	for _, s := range []models.RequestStatus{
		models.RequestStatusPending,
		models.RequestStatusRejected,
		models.RequestStatusExecuted,
		models.RequestStatusExpired,
	} {
		r := pendingRequest(models.OriginAdmin, time.Hour, now)
		r.Status = s
		if err := CanExecute(r, now); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Expected ErrInvalidState executing %s request, got %v", s, err)
		}
	}

	// approved but past deadline reads expired
	req = pendingRequest(models.OriginAdmin, -time.Minute, now)
	req.Status = models.RequestStatusApproved
	if err := CanExecute(req, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState executing expired-approved request, got %v", err)
	}
}

func TestCanMessage(t *testing.T) {
	now := time.Now().UTC()

	if err := CanMessage(pendingRequest(models.OriginAdmin, time.Hour, now), now); err != nil {
		t.Errorf("Expected messaging allowed on pending request: %v", err)
	}

	// approved is not terminal, messaging stays open
	req := pendingRequest(models.OriginAdmin, time.Hour, now)
	req.Status = models.RequestStatusApproved
	if err := CanMessage(req, now); err != nil {
		t.Errorf("Expected messaging allowed on approved request: %v", err)
	}

	// expired (via overlay) and rejected lock the thread
	if err := CanMessage(pendingRequest(models.OriginAdmin, -time.Minute, now), now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState messaging expired request, got %v", err)
	}
	req = pendingRequest(models.OriginAdmin, time.Hour, now)
	req.Status = models.RequestStatusRejected
	if err := CanMessage(req, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState messaging rejected request, got %v", err)
	}
}

func TestApplyChanges(t *testing.T) {
	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	task := &models.Task{Title: "old", Description: "desc", Priority: "low"}

	ApplyChanges(task, &models.ProposedChanges{Title: strPtr("new"), DueDate: &due})

	if task.Title != "new" {
		t.Errorf("Expected title updated, got %s", task.Title)
	}
	if task.Description != "desc" || task.Priority != "low" {
		t.Error("Expected untouched fields to be preserved")
	}
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Errorf("Expected due date %v, got %v", due, task.DueDate)
	}

	// nil change set is a no-op
	ApplyChanges(task, nil)
	if task.Title != "new" {
		t.Error("Expected nil changes to be a no-op")
	}
}

func TestCanReassign(t *testing.T) {
	cases := []struct {
		status  models.TaskStatus
		decline models.DeclineType
		ok      bool
	}{
		{models.TaskStatusWithdrawn, "", true},
		{models.TaskStatusDeclined, "", true},
		{models.TaskStatusDeclined, models.DeclineTypeAssignment, true},
		{models.TaskStatusDeclined, "other_decline", false},
		{models.TaskStatusCompleted, "", false},
		{models.TaskStatusInProgress, "", false},
	}

	for _, tc := range cases {
		task := &models.Task{ID: "t1", Status: tc.status, DeclineType: tc.decline}
		err := CanReassign(task)
		if tc.ok && err != nil {
			t.Errorf("status=%s decline=%s: unexpected error %v", tc.status, tc.decline, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidState) {
			t.Errorf("status=%s decline=%s: expected ErrInvalidState, got %v", tc.status, tc.decline, err)
		}
	}
}

func TestCanReopen(t *testing.T) {
	if err := CanReopen(&models.Task{ID: "t1", Status: models.TaskStatusCompleted}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := CanReopen(&models.Task{ID: "t1", Status: models.TaskStatusInProgress}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}
