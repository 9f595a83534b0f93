package dto

import (
	"time"

	"github.com/followup/ticket-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	IncNumber   string                `json:"inc_number"`
	MSISDN      string                `json:"msisdn"`
	SubmittedBy string                `json:"submitted_by"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged.
type UpdateTicketRequest struct {
	IncNumber   *string                `json:"inc_number"`
	MSISDN      *string                `json:"msisdn"`
	SubmittedBy *string                `json:"submitted_by"`
	Description *string                `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
}

// NoteRequest carries the optional note of escalate and close.
type NoteRequest struct {
	Note string `json:"note"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	UserID string `json:"user_id"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// ActorResponse is a frozen actor snapshot.
type ActorResponse struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email,omitempty"`
	Name   string      `json:"name,omitempty"`
	Role   domain.Role `json:"role"`
}

// AssignmentResponse describes the current assignee.
type AssignmentResponse struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email,omitempty"`
	Name             string    `json:"name,omitempty"`
	AssignedAt       time.Time `json:"assigned_at"`
	AssignedByUserID string    `json:"assigned_by_user_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              string                `json:"id"`
	IncNumber       string                `json:"inc_number"`
	MSISDN          string                `json:"msisdn"`
	SubmittedBy     string                `json:"submitted_by"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	EscalationLevel int                   `json:"escalation_level"`
	AssignedTo      *AssignmentResponse   `json:"assigned_to"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string                 `json:"description"`
	CreatedBy   ActorResponse          `json:"created_by"`
	UpdatedBy   *ActorResponse         `json:"updated_by,omitempty"`
	ClosedAt    *time.Time             `json:"closed_at,omitempty"`
	ClosedBy    *ActorResponse         `json:"closed_by,omitempty"`
	DeletedAt   *time.Time             `json:"deleted_at,omitempty"`
	DeletedBy   *ActorResponse         `json:"deleted_by,omitempty"`
	EscalatedAt *time.Time             `json:"escalated_at,omitempty"`
	EscalatedBy *ActorResponse         `json:"escalated_by,omitempty"`
	Version     int64                  `json:"version"`
	Comments    []CommentResponse      `json:"comments"`
	History     []HistoryEntryResponse `json:"history"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID              string        `json:"id"`
	Text            string        `json:"text"`
	CreatedAt       time.Time     `json:"created_at"`
	CreatedByUserID string        `json:"created_by_user_id"`
	CreatedBy       ActorResponse `json:"created_by"`
}

// HistoryEntryResponse represents one audit entry.
type HistoryEntryResponse struct {
	Action          domain.HistoryAction `json:"action"`
	Timestamp       time.Time            `json:"timestamp"`
	ActorID         string               `json:"actor_id"`
	ActorEmail      string               `json:"actor_email,omitempty"`
	EscalationLevel int                  `json:"escalation_level,omitempty"`
	FromLevel       int                  `json:"from_level,omitempty"`
	ToLevel         int                  `json:"to_level,omitempty"`
	AssignedToUser  string               `json:"assigned_to_user,omitempty"`
	ChangedFields   []string             `json:"changed_fields,omitempty"`
	Note            string               `json:"note,omitempty"`
}
