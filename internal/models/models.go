// Package models defines the core domain types for TaskDesk.
package models

import "time"

// TaskStatus represents the current state of a task. The workflow engine
// consumes these values; it only writes the ones its own operations produce
// (reopened, and field/soft-delete mutations on execute).
type TaskStatus string

const (
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusAccepted   TaskStatus = "accepted"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusWithdrawn  TaskStatus = "withdrawn"
	TaskStatusDeclined   TaskStatus = "declined_by_employee"
	TaskStatusReopened   TaskStatus = "reopened"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusAssigned, TaskStatusAccepted, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusWithdrawn,
		TaskStatusDeclined, TaskStatusReopened:
		return true
	}
	return false
}

// DeclineType qualifies a declined_by_employee status.
type DeclineType string

const (
	DeclineTypeAssignment DeclineType = "assignment_decline"
)

// Task represents an assignable unit of work on the dashboard.
type Task struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category,omitempty"`
	Priority    string      `json:"priority,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	Status      TaskStatus  `json:"status"`
	AssignedTo  string      `json:"assigned_to,omitempty"`
	DeclineType DeclineType `json:"decline_type,omitempty"`
	ReopenDueAt *time.Time  `json:"reopen_due_at,omitempty"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RequestOrigin identifies which party initiated a modification request.
// The origin determines which party decides and which executes.
type RequestOrigin string

const (
	OriginAdmin    RequestOrigin = "admin_initiated"
	OriginEmployee RequestOrigin = "employee_initiated"
)

// RequestType is the kind of change a modification request proposes.
type RequestType string

const (
	RequestTypeEdit      RequestType = "edit"
	RequestTypeDelete    RequestType = "delete"
	RequestTypeExtension RequestType = "extension"
)

// RequestStatus is the persisted lifecycle state of a modification request.
// Expiry is overlaid at read time, never assumed from the stored value.
type RequestStatus string

const (
	RequestStatusPending        RequestStatus = "pending"
	RequestStatusApproved       RequestStatus = "approved"
	RequestStatusRejected       RequestStatus = "rejected"
	RequestStatusCounterOffered RequestStatus = "counter_proposed"
	RequestStatusExecuted       RequestStatus = "executed"
	RequestStatusExpired        RequestStatus = "expired"
)

// IsOpen reports whether a status counts against the one-open-request
// invariant. counter_proposed is reserved but still blocks new requests.
func (s RequestStatus) IsOpen() bool {
	return s == RequestStatusPending || s == RequestStatusApproved || s == RequestStatusCounterOffered
}

// IsTerminal reports whether a status admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusRejected || s == RequestStatusExecuted || s == RequestStatusExpired
}

// ProposedChanges is the partial task mutation carried by an edit request.
// Nil fields are left untouched on execution.
type ProposedChanges struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Empty reports whether the change set proposes nothing.
func (p *ProposedChanges) Empty() bool {
	if p == nil {
		return true
	}
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.DueDate == nil
}

// Request scopes for the one-open-request-per-scope rule.
const (
	ScopeChange    = "change"
	ScopeExtension = "extension"
)

// ScopeForType returns the open-request scope for a request type:
// edit and delete compete for the same slot, extensions have their own.
func ScopeForType(t RequestType) string {
	if t == RequestTypeExtension {
		return ScopeExtension
	}
	return ScopeChange
}

// ModificationRequest is one edit/delete/extension proposal against a task.
// Extension requests reuse this entity with RequestedExtension set.
type ModificationRequest struct {
	ID                 string           `json:"id"`
	TaskID             string           `json:"task_id"`
	Origin             RequestOrigin    `json:"origin"`
	RequestType        RequestType      `json:"request_type"`
	Reason             string           `json:"reason"`
	ImpactNote         string           `json:"impact_note,omitempty"`
	ProposedChanges    *ProposedChanges `json:"proposed_changes,omitempty"`
	RequestedExtension *time.Time       `json:"requested_extension,omitempty"`
	SLAHours           int              `json:"sla_hours"`
	RequestedAt        time.Time        `json:"requested_at"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
	Status             RequestStatus    `json:"status"`
	EmployeeViewedAt   *time.Time       `json:"employee_viewed_at,omitempty"`
	DecisionNote       string           `json:"decision_note,omitempty"`
	AdminNote          string           `json:"admin_note,omitempty"`
	ExecutedAt         *time.Time       `json:"executed_at,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`

	// EffectiveStatus overlays SLA expiry onto Status at read time.
	// Populated by the service, never persisted.
	EffectiveStatus RequestStatus `json:"effective_status,omitempty"`
}

// Scope returns the open-request scope this request occupies.
func (r *ModificationRequest) Scope() string {
	return ScopeForType(r.RequestType)
}

// ActorRole distinguishes the two negotiating parties.
type ActorRole string

const (
	RoleAdmin    ActorRole = "admin"
	RoleEmployee ActorRole = "employee"
)

// Message is one entry in a request's discussion thread. Immutable once
// appended; Seq is the insertion and display order.
type Message struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Seq        int64     `json:"seq"`
	SenderRole ActorRole `json:"sender_role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmployeeStatus marks directory entries as assignable or not.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is a read-mostly directory entry used as an assignment target.
type Employee struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Email  string         `json:"email"`
	Status EmployeeStatus `json:"status"`
}

// TimelineEvent is one append-only audit entry on a task's activity feed.
type TimelineEvent struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	EventType  string    `json:"event_type"`
	ActorRole  ActorRole `json:"actor_role,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	InputsHash string    `json:"inputs_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Timeline event types written by the engine.
const (
	EventTaskCreated     = "TASK_CREATED"
	EventTaskReassigned  = "TASK_REASSIGNED"
	EventTaskReopened    = "TASK_REOPENED"
	EventTaskStatusSet   = "TASK_STATUS_CHANGED"
	EventRequestCreated  = "REQUEST_CREATED"
	EventRequestViewed   = "REQUEST_VIEWED"
	EventRequestApproved = "REQUEST_APPROVED"
	EventRequestRejected = "REQUEST_REJECTED"
	EventRequestExecuted = "REQUEST_EXECUTED"
	EventRequestExpired  = "REQUEST_EXPIRED"
)
