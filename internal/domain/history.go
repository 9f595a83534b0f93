package domain

import "time"

// HistoryAction names an audited ticket mutation.
type HistoryAction string

const (
	ActionCreated   HistoryAction = "created"
	ActionEscalated HistoryAction = "escalated"
	ActionClosed    HistoryAction = "closed"
	ActionAssigned  HistoryAction = "assigned"
	ActionEdited    HistoryAction = "edited"
	ActionDeleted   HistoryAction = "deleted"
)

// HistoryEntry is an immutable audit trail entry. Action specific fields are
// left empty when they do not apply.
type HistoryEntry struct {
	Action          HistoryAction `json:"action"`
	Timestamp       time.Time     `json:"timestamp"`
	ActorID         string        `json:"actorId"`
	ActorEmail      string        `json:"actorEmail,omitempty"`
	EscalationLevel int           `json:"escalationLevel,omitempty"`
	FromLevel       int           `json:"fromLevel,omitempty"`
	ToLevel         int           `json:"toLevel,omitempty"`
	AssignedToUser  string        `json:"assignedToUser,omitempty"`
	ChangedFields   []string      `json:"changedFields,omitempty"`
	Note            string        `json:"note,omitempty"`
}
