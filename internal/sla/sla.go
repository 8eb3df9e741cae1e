// Package sla classifies deadlines into urgency levels and overlays
// real-time expiry onto persisted request statuses. Both the request SLA
// and the task reopen deadline go through the same evaluator.
package sla

import (
	"time"

	"github.com/taskdeskhq/taskdesk/internal/models"
)

// Level is the urgency classification of a deadline.
type Level string

const (
	LevelNeutral Level = "neutral"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// WarningWindow is the remaining time under which a deadline is flagged
// as warning rather than neutral.
const WarningWindow = 12 * time.Hour

// Meta is the result of evaluating a deadline at a point in time.
type Meta struct {
	Remaining time.Duration `json:"remaining_ns"`
	Level     Level         `json:"level"`
}

// Evaluate classifies expiresAt as seen from now. A nil expiresAt means
// the subject carries no deadline and yields no meta.
func Evaluate(now time.Time, expiresAt *time.Time) *Meta {
	if expiresAt == nil {
		return nil
	}
	remaining := expiresAt.Sub(now)
	level := LevelNeutral
	switch {
	case remaining <= 0:
		level = LevelDanger
	case remaining <= WarningWindow:
		level = LevelWarning
	}
	return &Meta{Remaining: remaining, Level: level}
}

// EffectiveStatus overlays expiry onto a stored request status. A pending
// or approved request whose deadline has passed reads as expired even
// though the persisted row is untouched. Every read path must call this;
// expiry is a function of wall-clock time, not a stored event.
func EffectiveStatus(status models.RequestStatus, expiresAt *time.Time, now time.Time) models.RequestStatus {
	if status != models.RequestStatusPending && status != models.RequestStatusApproved {
		return status
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return models.RequestStatusExpired
	}
	return status
}

// Expired reports whether the deadline has passed as seen from now.
func Expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}
