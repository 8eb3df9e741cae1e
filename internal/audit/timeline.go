// Package audit appends activity timeline entries for TaskDesk tasks.
// Every state-mutating operation records an event carrying a hash of its
// inputs so decisions stay reproducible after the fact.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/store"
)

// Recorder writes timeline events for audit trails.
type Recorder struct {
	store *store.Store
}

// NewRecorder creates a new timeline recorder.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record appends one timeline event for a state-mutating action.
func (r *Recorder) Record(taskID, eventType string, actorRole models.ActorRole, actorID string, inputs interface{}, detail string) (*models.TimelineEvent, error) {
	ev := &models.TimelineEvent{
		TaskID:     taskID,
		EventType:  eventType,
		ActorRole:  actorRole,
		ActorID:    actorID,
		Detail:     detail,
		InputsHash: hashInputs(inputs),
	}
	if err := r.store.AppendEvent(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
