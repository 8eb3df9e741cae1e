package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set(HeaderActorID, "emp-1")
	req.Header.Set(HeaderActorRole, "employee")

	actor, err := FromRequest(req)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if actor.ID != "emp-1" || actor.Role != models.RoleEmployee {
		t.Errorf("Unexpected actor: %+v", actor)
	}
}

func TestFromRequest_MissingOrBadHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/tasks", nil)
	if _, err := FromRequest(req); !errors.Is(err, workflow.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized without headers, got %v", err)
	}

	req.Header.Set(HeaderActorID, "u-1")
	req.Header.Set(HeaderActorRole, "superuser")
	if _, err := FromRequest(req); !errors.Is(err, workflow.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for unknown role, got %v", err)
	}
}

func TestRoleChecks(t *testing.T) {
	admin := Actor{ID: "a-1", Role: models.RoleAdmin}
	employee := Actor{ID: "e-1", Role: models.RoleEmployee}

	if err := admin.RequireAdmin(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := employee.RequireAdmin(); !errors.Is(err, workflow.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
	if err := employee.RequireEmployee(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := admin.RequireEmployee(); !errors.Is(err, workflow.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}
