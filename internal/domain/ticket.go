package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClosed  TicketStatus = "closed"
	TicketStatusDeleted TicketStatus = "deleted"
)

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh:
		return true
	}
	return false
}

// Escalation ladder bounds.
const (
	MinEscalationLevel = 1
	MaxEscalationLevel = 5
	// HighPriorityLevel is the level at which escalation forces high priority.
	HighPriorityLevel = 4
)

// Document field names. Patches written to the store are keyed by these.
const (
	FieldIncNumber       = "incNumber"
	FieldMSISDN          = "msisdn"
	FieldSubmittedBy     = "submittedBy"
	FieldDescription     = "description"
	FieldPriority        = "priority"
	FieldStatus          = "status"
	FieldEscalationLevel = "escalationLevel"
	FieldAssignedTo      = "assignedTo"
	FieldComments        = "comments"
	FieldHistory         = "history"
	FieldCreatedAt       = "createdAt"
	FieldUpdatedAt       = "updatedAt"
	FieldUpdatedBy       = "updatedBy"
	FieldClosedAt        = "closedAt"
	FieldClosedBy        = "closedBy"
	FieldDeletedAt       = "deletedAt"
	FieldDeletedBy       = "deletedBy"
	FieldEscalatedAt     = "escalatedAt"
	FieldEscalatedBy     = "escalatedBy"
	FieldCreatedBy       = "createdBy"
	FieldVersion         = "version"
)

// Ticket is the support ticket document.
type Ticket struct {
	ID              string         `json:"id,omitempty"`
	IncNumber       string         `json:"incNumber"`
	MSISDN          string         `json:"msisdn"`
	SubmittedBy     string         `json:"submittedBy"`
	Description     string         `json:"description"`
	Priority        TicketPriority `json:"priority"`
	Status          TicketStatus   `json:"status"`
	EscalationLevel int            `json:"escalationLevel"`
	AssignedTo      *Assignment    `json:"assignedTo"`
	Comments        []Comment      `json:"comments"`
	History         []HistoryEntry `json:"history"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	ClosedAt        *time.Time     `json:"closedAt,omitempty"`
	DeletedAt       *time.Time     `json:"deletedAt,omitempty"`
	EscalatedAt     *time.Time     `json:"escalatedAt,omitempty"`
	CreatedBy       ActorSnapshot  `json:"createdBy"`
	UpdatedBy       *ActorSnapshot `json:"updatedBy,omitempty"`
	ClosedBy        *ActorSnapshot `json:"closedBy,omitempty"`
	DeletedBy       *ActorSnapshot `json:"deletedBy,omitempty"`
	EscalatedBy     *ActorSnapshot `json:"escalatedBy,omitempty"`
	Version         int64          `json:"version"`
}

// Assignment records who a ticket is assigned to and by whom.
type Assignment struct {
	UserID           string    `json:"userId"`
	Email            string    `json:"email,omitempty"`
	Name             string    `json:"name,omitempty"`
	AssignedAt       time.Time `json:"assignedAt"`
	AssignedByUserID string    `json:"assignedByUserId"`
}

// IsDeleted reports whether the ticket has been soft deleted.
func (t *Ticket) IsDeleted() bool {
	return t.Status == TicketStatusDeleted
}

// IsClosedOrDeleted reports whether the ticket left the open state.
func (t *Ticket) IsClosedOrDeleted() bool {
	return t.Status == TicketStatusClosed || t.Status == TicketStatusDeleted
}
