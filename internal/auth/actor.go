// Package auth resolves the acting party for TaskDesk operations. The
// dashboard frontend authenticates users and forwards the resulting
// identity on every request; the engine only needs who is acting and in
// which role to authorize each operation.
package auth

import (
	"net/http"

	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

// Identity headers supplied by the authenticating frontend.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// Actor is the authenticated party performing an operation.
type Actor struct {
	ID   string           `json:"id"`
	Role models.ActorRole `json:"role"`
}

// FromRequest extracts the actor from the identity headers.
func FromRequest(r *http.Request) (Actor, error) {
	actor := Actor{
		ID:   r.Header.Get(HeaderActorID),
		Role: models.ActorRole(r.Header.Get(HeaderActorRole)),
	}
	if actor.ID == "" {
		return Actor{}, workflow.Unauthorizedf("missing %s header", HeaderActorID)
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleEmployee {
		return Actor{}, workflow.Unauthorizedf("unknown role %q", actor.Role)
	}
	return actor, nil
}

// RequireAdmin fails unless the actor holds the admin role.
func (a Actor) RequireAdmin() error {
	if a.Role != models.RoleAdmin {
		return workflow.Unauthorizedf("operation requires the admin role")
	}
	return nil
}

// RequireEmployee fails unless the actor holds the employee role.
func (a Actor) RequireEmployee() error {
	if a.Role != models.RoleEmployee {
		return workflow.Unauthorizedf("operation requires the employee role")
	}
	return nil
}
