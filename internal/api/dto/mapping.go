package dto

import "github.com/followup/ticket-service/internal/domain"

// NewTicketSummary maps a ticket to its list representation.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	summary := TicketSummary{
		ID:              ticket.ID,
		IncNumber:       ticket.IncNumber,
		MSISDN:          ticket.MSISDN,
		SubmittedBy:     ticket.SubmittedBy,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		EscalationLevel: ticket.EscalationLevel,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
	}
	if a := ticket.AssignedTo; a != nil {
		summary.AssignedTo = &AssignmentResponse{
			UserID:           a.UserID,
			Email:            a.Email,
			Name:             a.Name,
			AssignedAt:       a.AssignedAt,
			AssignedByUserID: a.AssignedByUserID,
		}
	}
	return summary
}

// NewTicketDetail maps a ticket with its comments and history.
func NewTicketDetail(ticket *domain.Ticket) TicketDetailResponse {
	comments := make([]CommentResponse, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		comments = append(comments, NewCommentResponse(&comment))
	}
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(ticket),
		Description:   ticket.Description,
		CreatedBy:     newActorResponse(ticket.CreatedBy),
		UpdatedBy:     optionalActor(ticket.UpdatedBy),
		ClosedAt:      ticket.ClosedAt,
		ClosedBy:      optionalActor(ticket.ClosedBy),
		DeletedAt:     ticket.DeletedAt,
		DeletedBy:     optionalActor(ticket.DeletedBy),
		EscalatedAt:   ticket.EscalatedAt,
		EscalatedBy:   optionalActor(ticket.EscalatedBy),
		Version:       ticket.Version,
		Comments:      comments,
		History:       NewHistoryResponses(ticket.History),
	}
}

// NewCommentResponse maps a comment.
func NewCommentResponse(comment *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:              comment.ID,
		Text:            comment.Text,
		CreatedAt:       comment.CreatedAt,
		CreatedByUserID: comment.CreatedByUserID,
		CreatedBy:       newActorResponse(comment.CreatedBy),
	}
}

// NewHistoryResponses maps audit entries, preserving order.
func NewHistoryResponses(entries []domain.HistoryEntry) []HistoryEntryResponse {
	resp := make([]HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, HistoryEntryResponse{
			Action:          entry.Action,
			Timestamp:       entry.Timestamp,
			ActorID:         entry.ActorID,
			ActorEmail:      entry.ActorEmail,
			EscalationLevel: entry.EscalationLevel,
			FromLevel:       entry.FromLevel,
			ToLevel:         entry.ToLevel,
			AssignedToUser:  entry.AssignedToUser,
			ChangedFields:   entry.ChangedFields,
			Note:            entry.Note,
		})
	}
	return resp
}

func newActorResponse(s domain.ActorSnapshot) ActorResponse {
	return ActorResponse{UserID: s.UserID, Email: s.Email, Name: s.Name, Role: s.Role}
}

func optionalActor(s *domain.ActorSnapshot) *ActorResponse {
	if s == nil {
		return nil
	}
	resp := newActorResponse(*s)
	return &resp
}
