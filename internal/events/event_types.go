package events

import (
	"time"

	"github.com/followup/ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketEscalated    EventType = "ticket_escalated"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketCommentAdded EventType = "ticket_comment_added"
	EventTicketEdited       EventType = "ticket_edited"
	EventTicketDeleted      EventType = "ticket_deleted"
)

// AllEventTypes lists every event the lifecycle engine emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketEscalated,
	EventTicketClosed,
	EventTicketAssigned,
	EventTicketCommentAdded,
	EventTicketEdited,
	EventTicketDeleted,
}

// Event represents a domain event emitted after a ticket write succeeded.
type Event struct {
	ID        string               `json:"id"`
	Type      EventType            `json:"type"`
	TicketID  string               `json:"ticket_id"`
	Actor     domain.ActorSnapshot `json:"actor"`
	Timestamp time.Time            `json:"timestamp"`
	Payload   interface{}          `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	IncNumber string                `json:"inc_number"`
	Priority  domain.TicketPriority `json:"priority"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	FromLevel int                   `json:"from_level"`
	ToLevel   int                   `json:"to_level"`
	Priority  domain.TicketPriority `json:"priority"`
	Note      string                `json:"note,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Note string `json:"note,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeUserID string `json:"assignee_user_id"`
	AssigneeEmail  string `json:"assignee_email,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	BodyPreview string `json:"body_preview"`
}

// TicketEditedPayload payload.
type TicketEditedPayload struct {
	ChangedFields []string `json:"changed_fields"`
}
