package sweeper

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/taskdeskhq/taskdesk/internal/audit"
	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/store"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

func newFixture(t *testing.T) (*store.Store, *Sweeper) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, New(s, audit.NewRecorder(s), time.Minute)
}

func TestSweepOnce(t *testing.T) {
	s, sw := newFixture(t)

	emp, _ := s.CreateEmployee("Dana Smith", "dana@example.com", models.EmployeeActive)
	task, _ := s.CreateTask(store.TaskInput{Title: "Prepare Q3 report", AssignedTo: emp.ID})

	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Now().UTC().Add(-48 * time.Hour)
	req, err := s.CreateRequest(workflow.CreateInput{
		TaskID:          task.ID,
		Origin:          models.OriginAdmin,
		RequestType:     models.RequestTypeEdit,
		Reason:          "Please fix the due date for Q3",
		SLAHours:        24,
		ProposedChanges: &models.ProposedChanges{DueDate: &due},
	}, t0)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	now := time.Now().UTC()
	if n := sw.SweepOnce(now); n != 1 {
		t.Errorf("Expected 1 expiration, got %d", n)
	}

	got, _ := s.GetRequest(req.ID)
	if got.Status != models.RequestStatusExpired {
		t.Errorf("Expected expired, got %s", got.Status)
	}

	events, _ := s.ListEvents(task.ID)
	found := false
	for _, ev := range events {
		if ev.EventType == models.EventRequestExpired {
			found = true
		}
	}
	if !found {
		t.Error("Expected a REQUEST_EXPIRED timeline event")
	}

	// Idempotent on repeat.
	if n := sw.SweepOnce(now); n != 0 {
		t.Errorf("Expected no expirations on second sweep, got %d", n)
	}
}
