package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

// httpStatus maps workflow error kinds to response codes. Validation
// failures are resubmittable (422), invalid-state means the caller's view
// is stale and should be refreshed (409).
func httpStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrUnauthorized):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
