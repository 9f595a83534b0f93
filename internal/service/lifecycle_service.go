package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
	"github.com/followup/ticket-service/internal/events"
	"github.com/followup/ticket-service/internal/policy"
	"github.com/followup/ticket-service/internal/repository"
	"github.com/followup/ticket-service/internal/validation"
	apperrors "github.com/followup/ticket-service/pkg/util/errorutil"
)

// LifecycleService runs the ticket state machine. Each mutating operation
// loads a fresh snapshot, computes the new state on a local copy, appends one
// history entry and writes a single merge patch back to the store.
type LifecycleService struct {
	tickets     repository.TicketRepository
	users       repository.UserRepository
	policy      *policy.Policy
	sanitizer   *validation.Sanitizer
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
	writeMode   string
	maxAttempts int
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Policy     *policy.Policy
	Sanitizer  *validation.Sanitizer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock stamps every persisted time field. Defaults to UTC wall time.
	Clock            func() time.Time
	WriteMode        string
	MaxWriteAttempts int
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	IncNumber   string
	MSISDN      string
	SubmittedBy string
	Description string
	Priority    domain.TicketPriority
}

// EditTicketInput carries the fields to change. Nil fields are left alone.
type EditTicketInput struct {
	IncNumber   *string
	MSISDN      *string
	SubmittedBy *string
	Description *string
	Priority    *domain.TicketPriority
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	AssignedTo      *string
	CreatedBy       *string
	EscalationLevel *int
	IncludeDeleted  bool
	SortField       string
	Ascending       bool
	Limit           int
	Offset          int
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		policy:      deps.Policy,
		sanitizer:   deps.Sanitizer,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		now:         deps.Clock,
		writeMode:   deps.WriteMode,
		maxAttempts: deps.MaxWriteAttempts,
	}
	if s.policy == nil {
		s.policy = policy.New(nil)
	}
	if s.sanitizer == nil {
		s.sanitizer = validation.NewSanitizer()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.writeMode == "" {
		s.writeMode = config.WriteModeMerge
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 1
	}
	return s
}

// Create validates the payload and stores a new open ticket at level 1.
func (s *LifecycleService) Create(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpCreate); err != nil {
		return nil, err
	}

	fields := validation.Fields{
		IncNumber:   &input.IncNumber,
		MSISDN:      &input.MSISDN,
		SubmittedBy: &input.SubmittedBy,
		Description: &input.Description,
	}
	if input.Priority != "" {
		fields.Priority = &input.Priority
	}
	fields = s.sanitizer.Fields(fields)
	if errs := validation.Validate(fields, true); errs != nil {
		return nil, apperrors.NewValidationError("ticket payload is invalid", errs)
	}

	priority := domain.TicketPriorityNormal
	if fields.Priority != nil {
		priority = *fields.Priority
	}

	now := s.now()
	snapshot := actor.Snapshot()
	ticket := &domain.Ticket{
		IncNumber:       *fields.IncNumber,
		MSISDN:          *fields.MSISDN,
		SubmittedBy:     *fields.SubmittedBy,
		Description:     *fields.Description,
		Priority:        priority,
		Status:          domain.TicketStatusOpen,
		EscalationLevel: domain.MinEscalationLevel,
		Comments:        []domain.Comment{},
		History: []domain.HistoryEntry{
			historyEntry(actor, now, domain.ActionCreated, func(e *domain.HistoryEntry) {
				e.EscalationLevel = domain.MinEscalationLevel
			}),
		},
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: snapshot,
		UpdatedBy: &snapshot,
	}

	if _, err := s.tickets.Create(ctx, ticket); err != nil {
		s.logger.Warn("ticket create failed", zap.Error(err))
		return nil, apperrors.NewStoreFailure(err)
	}

	s.logger.Debug("ticket created", zap.String("ticket_id", ticket.ID), zap.String("actor_id", actor.ID))
	s.publishEvent(ctx, actor, now, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		IncNumber: ticket.IncNumber,
		Priority:  ticket.Priority,
	})
	return ticket, nil
}

// Escalate moves an open ticket one level up the ladder. Reaching
// HighPriorityLevel promotes the priority to high.
func (s *LifecycleService) Escalate(ctx context.Context, actor domain.Actor, ticketID, note string) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpEscalate); err != nil {
		return nil, err
	}
	note = s.sanitizer.Plain(note)

	var payload events.TicketEscalatedPayload
	ticket, now, err := s.mutate(ctx, ticketID, func(t *domain.Ticket, now time.Time) (repository.Patch, error) {
		if t.Status != domain.TicketStatusOpen {
			return nil, apperrors.NewInvalidTransition("only open tickets can be escalated",
				map[string]any{"status": t.Status})
		}
		if t.EscalationLevel >= domain.MaxEscalationLevel {
			return nil, apperrors.NewInvalidTransition("ticket is already at the maximum escalation level",
				map[string]any{"escalationLevel": t.EscalationLevel})
		}

		from := t.EscalationLevel
		if from < domain.MinEscalationLevel {
			from = domain.MinEscalationLevel
		}
		to := from + 1
		t.EscalationLevel = to
		if to >= domain.HighPriorityLevel {
			t.Priority = domain.TicketPriorityHigh
		}
		snapshot := actor.Snapshot()
		t.EscalatedAt = &now
		t.EscalatedBy = &snapshot
		t.History = append(t.History, historyEntry(actor, now, domain.ActionEscalated, func(e *domain.HistoryEntry) {
			e.FromLevel = from
			e.ToLevel = to
			e.Note = note
		}))
		payload = events.TicketEscalatedPayload{FromLevel: from, ToLevel: to, Priority: t.Priority, Note: note}

		patch := touch(t, actor, now)
		patch[domain.FieldEscalationLevel] = t.EscalationLevel
		patch[domain.FieldPriority] = t.Priority
		patch[domain.FieldEscalatedAt] = t.EscalatedAt
		patch[domain.FieldEscalatedBy] = t.EscalatedBy
		patch[domain.FieldHistory] = t.History
		return patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, now, events.EventTicketEscalated, ticket.ID, payload)
	return ticket, nil
}

// Close marks a ticket closed. A non-empty note is kept as a comment.
func (s *LifecycleService) Close(ctx context.Context, actor domain.Actor, ticketID, note string) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpClose); err != nil {
		return nil, err
	}
	note = s.sanitizer.Rich(note)
	if note != "" {
		if errs := validation.ValidateComment(closingNote(note)); errs != nil {
			return nil, apperrors.NewValidationError("closing note is invalid", map[string]string{"note": errs["text"]})
		}
	}

	ticket, now, err := s.mutate(ctx, ticketID, func(t *domain.Ticket, now time.Time) (repository.Patch, error) {
		if t.IsClosedOrDeleted() {
			return nil, apperrors.NewInvalidTransition("ticket is already "+string(t.Status),
				map[string]any{"status": t.Status})
		}

		snapshot := actor.Snapshot()
		t.Status = domain.TicketStatusClosed
		t.ClosedAt = &now
		t.ClosedBy = &snapshot
		t.History = append(t.History, historyEntry(actor, now, domain.ActionClosed, nil))

		patch := touch(t, actor, now)
		patch[domain.FieldStatus] = t.Status
		patch[domain.FieldClosedAt] = t.ClosedAt
		patch[domain.FieldClosedBy] = t.ClosedBy
		patch[domain.FieldHistory] = t.History
		if note != "" {
			t.Comments = append(t.Comments, newComment(actor, now, closingNote(note)))
			patch[domain.FieldComments] = t.Comments
		}
		return patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, now, events.EventTicketClosed, ticket.ID, events.TicketClosedPayload{Note: note})
	return ticket, nil
}

// Assign points the ticket at an active directory user.
func (s *LifecycleService) Assign(ctx context.Context, actor domain.Actor, ticketID, targetUserID string) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpAssign); err != nil {
		return nil, err
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return nil, apperrors.NewValidationError("assignee is required", map[string]string{"userId": "userId is required"})
	}

	target, err := s.users.GetByID(ctx, targetUserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("user", map[string]any{"id": targetUserID})
	case err != nil:
		s.logger.Warn("assignee lookup failed", zap.String("user_id", targetUserID), zap.Error(err))
		return nil, apperrors.NewStoreFailure(err)
	case !target.Active:
		return nil, apperrors.NewNotFound("user", map[string]any{"id": targetUserID, "reason": "inactive"})
	}

	ticket, now, err := s.mutate(ctx, ticketID, func(t *domain.Ticket, now time.Time) (repository.Patch, error) {
		if t.IsClosedOrDeleted() {
			return nil, apperrors.NewInvalidTransition("cannot assign a "+string(t.Status)+" ticket",
				map[string]any{"status": t.Status})
		}

		t.AssignedTo = &domain.Assignment{
			UserID:           target.ID,
			Email:            target.Email,
			Name:             target.Name,
			AssignedAt:       now,
			AssignedByUserID: actor.ID,
		}
		t.History = append(t.History, historyEntry(actor, now, domain.ActionAssigned, func(e *domain.HistoryEntry) {
			e.AssignedToUser = target.ID
		}))

		patch := touch(t, actor, now)
		patch[domain.FieldAssignedTo] = t.AssignedTo
		patch[domain.FieldHistory] = t.History
		return patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, now, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{
		AssigneeUserID: target.ID,
		AssigneeEmail:  target.Email,
	})
	return ticket, nil
}

// AddComment appends a comment. Comments are not audited in history.
func (s *LifecycleService) AddComment(ctx context.Context, actor domain.Actor, ticketID, text string) (*domain.Comment, error) {
	if err := s.authorize(actor, policy.OpComment); err != nil {
		return nil, err
	}
	text = s.sanitizer.Rich(text)
	if errs := validation.ValidateComment(text); errs != nil {
		return nil, apperrors.NewValidationError("comment is invalid", errs)
	}

	var comment domain.Comment
	ticket, now, err := s.mutate(ctx, ticketID, func(t *domain.Ticket, now time.Time) (repository.Patch, error) {
		if t.IsDeleted() {
			return nil, apperrors.NewInvalidTransition("cannot comment on a deleted ticket",
				map[string]any{"status": t.Status})
		}

		comment = newComment(actor, now, text)
		t.Comments = append(t.Comments, comment)

		patch := touch(t, actor, now)
		patch[domain.FieldComments] = t.Comments
		return patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, now, events.EventTicketCommentAdded, ticket.ID, events.TicketCommentAddedPayload{
		CommentID:   comment.ID,
		BodyPreview: preview(comment.Text, 120),
	})
	return &comment, nil
}

// Edit changes business fields of an open ticket.
func (s *LifecycleService) Edit(ctx context.Context, actor domain.Actor, ticketID string, input EditTicketInput) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpEdit); err != nil {
		return nil, err
	}

	fields := s.sanitizer.Fields(validation.Fields{
		IncNumber:   input.IncNumber,
		MSISDN:      input.MSISDN,
		SubmittedBy: input.SubmittedBy,
		Description: input.Description,
		Priority:    input.Priority,
	})
	if fields.Empty() {
		return nil, apperrors.NewValidationError("no fields to update",
			map[string]string{"fields": "at least one field is required"})
	}
	if errs := validation.Validate(fields, false); errs != nil {
		return nil, apperrors.NewValidationError("ticket payload is invalid", errs)
	}

	var changed []string
	ticket, now, err := s.mutate(ctx, ticketID, func(t *domain.Ticket, now time.Time) (repository.Patch, error) {
		if t.IsClosedOrDeleted() {
			return nil, apperrors.NewInvalidTransition("cannot edit a "+string(t.Status)+" ticket",
				map[string]any{"status": t.Status})
		}
		if fields.Priority != nil && *fields.Priority != domain.TicketPriorityHigh && t.EscalationLevel >= domain.HighPriorityLevel {
			return nil, apperrors.NewInvalidTransition("priority stays high from escalation level 4",
				map[string]any{"escalationLevel": t.EscalationLevel})
		}

		patch := repository.Patch{}
		changed = applyEdits(t, fields, patch)
		t.History = append(t.History, historyEntry(actor, now, domain.ActionEdited, func(e *domain.HistoryEntry) {
			e.ChangedFields = changed
		}))

		for key, value := range touch(t, actor, now) {
			patch[key] = value
		}
		patch[domain.FieldHistory] = t.History
		return patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, now, events.EventTicketEdited, ticket.ID, events.TicketEditedPayload{ChangedFields: changed})
	return ticket, nil
}

// Delete soft deletes a ticket. The document stays readable.
func (s *LifecycleService) Delete(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpDelete); err != nil {
		return nil, err
	}

	ticket, now, err := s.mutate(ctx, ticketID, func(t *domain.Ticket, now time.Time) (repository.Patch, error) {
		if t.IsDeleted() {
			return nil, apperrors.NewInvalidTransition("ticket is already deleted",
				map[string]any{"status": t.Status})
		}

		snapshot := actor.Snapshot()
		t.Status = domain.TicketStatusDeleted
		t.DeletedAt = &now
		t.DeletedBy = &snapshot
		t.History = append(t.History, historyEntry(actor, now, domain.ActionDeleted, nil))

		patch := touch(t, actor, now)
		patch[domain.FieldStatus] = t.Status
		patch[domain.FieldDeletedAt] = t.DeletedAt
		patch[domain.FieldDeletedBy] = t.DeletedBy
		patch[domain.FieldHistory] = t.History
		return patch, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, actor, now, events.EventTicketDeleted, ticket.ID, nil)
	return ticket, nil
}

// Get returns a ticket, including soft deleted ones.
func (s *LifecycleService) Get(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpView); err != nil {
		return nil, err
	}
	return s.load(ctx, ticketID)
}

// List returns tickets matching filter.
func (s *LifecycleService) List(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := s.authorize(actor, policy.OpView); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		Status:          filter.Status,
		Priority:        filter.Priority,
		AssignedTo:      filter.AssignedTo,
		CreatedBy:       filter.CreatedBy,
		EscalationLevel: filter.EscalationLevel,
		IncludeDeleted:  filter.IncludeDeleted,
		SortField:       filter.SortField,
		Ascending:       filter.Ascending,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	})
	if err != nil {
		s.logger.Warn("ticket list failed", zap.Error(err))
		return nil, apperrors.NewStoreFailure(err)
	}
	return tickets, nil
}

// History returns the audit trail of a ticket in append order.
func (s *LifecycleService) History(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.HistoryEntry, error) {
	ticket, err := s.Get(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.History == nil {
		return []domain.HistoryEntry{}, nil
	}
	return ticket.History, nil
}

// mutation computes the new state on t and returns the fields to persist.
type mutation func(t *domain.Ticket, now time.Time) (repository.Patch, error)

// mutate runs the read-compute-write cycle. In merge mode the patch is
// written unconditionally; in optimistic mode it is written only if the
// stored version is unchanged, re-reading on conflict.
func (s *LifecycleService) mutate(ctx context.Context, ticketID string, compute mutation) (*domain.Ticket, time.Time, error) {
	optimistic := s.writeMode == config.WriteModeOptimistic
	attempts := 1
	if optimistic {
		attempts = s.maxAttempts
	}

	for attempt := 1; ; attempt++ {
		ticket, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, time.Time{}, err
		}

		now := s.now()
		expected := ticket.Version
		patch, err := compute(ticket, now)
		if err != nil {
			return nil, time.Time{}, err
		}
		ticket.Version = expected + 1
		patch[domain.FieldVersion] = ticket.Version

		if optimistic {
			err = s.tickets.MergeUpdateIfVersion(ctx, ticketID, expected, patch)
		} else {
			err = s.tickets.MergeUpdate(ctx, ticketID, patch)
		}

		switch {
		case err == nil:
			s.logger.Debug("ticket updated",
				zap.String("ticket_id", ticketID),
				zap.Int64("version", ticket.Version),
				zap.Int("attempt", attempt))
			return ticket, now, nil
		case errors.Is(err, repository.ErrVersionConflict):
			if attempt < attempts {
				s.logger.Debug("ticket version conflict; retrying",
					zap.String("ticket_id", ticketID),
					zap.Int("attempt", attempt))
				continue
			}
			return nil, time.Time{}, apperrors.NewConflict("ticket was modified concurrently",
				map[string]any{"id": ticketID, "attempts": attempt})
		case errors.Is(err, repository.ErrNotFound):
			return nil, time.Time{}, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		default:
			s.logger.Warn("ticket write failed", zap.String("ticket_id", ticketID), zap.Error(err))
			return nil, time.Time{}, apperrors.NewStoreFailure(err)
		}
	}
}

func (s *LifecycleService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	if err != nil {
		s.logger.Warn("ticket read failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil, apperrors.NewStoreFailure(err)
	}
	return ticket, nil
}

func (s *LifecycleService) authorize(actor domain.Actor, op policy.Operation) error {
	if strings.TrimSpace(actor.ID) == "" || actor.Role == "" {
		return apperrors.NewAuthenticationRequired("an authenticated actor is required")
	}
	if !s.policy.CanPerform(op, actor.Role) {
		return apperrors.NewPermissionDenied(string(op))
	}
	return nil
}

func (s *LifecycleService) publishEvent(ctx context.Context, actor domain.Actor, at time.Time, eventType events.EventType, ticketID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor.Snapshot(),
		Timestamp: at,
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", string(eventType)),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

// touch stamps updatedAt/updatedBy and starts the patch with them.
func touch(t *domain.Ticket, actor domain.Actor, now time.Time) repository.Patch {
	snapshot := actor.Snapshot()
	t.UpdatedAt = now
	t.UpdatedBy = &snapshot
	return repository.Patch{
		domain.FieldUpdatedAt: t.UpdatedAt,
		domain.FieldUpdatedBy: t.UpdatedBy,
	}
}

func historyEntry(actor domain.Actor, now time.Time, action domain.HistoryAction, fill func(*domain.HistoryEntry)) domain.HistoryEntry {
	entry := domain.HistoryEntry{
		Action:     action,
		Timestamp:  now,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
	}
	if fill != nil {
		fill(&entry)
	}
	return entry
}

func newComment(actor domain.Actor, now time.Time, text string) domain.Comment {
	return domain.Comment{
		ID:              uuid.NewString(),
		Text:            text,
		CreatedAt:       now,
		CreatedByUserID: actor.ID,
		CreatedBy:       actor.Snapshot(),
	}
}

func closingNote(note string) string {
	return "Ticket closed: " + note
}

// applyEdits copies supplied values that differ from t into t and patch and
// returns the changed field names in document order.
func applyEdits(t *domain.Ticket, fields validation.Fields, patch repository.Patch) []string {
	changed := []string{}
	set := func(name string, current *string, value *string) {
		if value == nil || *value == *current {
			return
		}
		*current = *value
		patch[name] = *value
		changed = append(changed, name)
	}
	set(domain.FieldIncNumber, &t.IncNumber, fields.IncNumber)
	set(domain.FieldMSISDN, &t.MSISDN, fields.MSISDN)
	set(domain.FieldSubmittedBy, &t.SubmittedBy, fields.SubmittedBy)
	set(domain.FieldDescription, &t.Description, fields.Description)
	if fields.Priority != nil && *fields.Priority != t.Priority {
		t.Priority = *fields.Priority
		patch[domain.FieldPriority] = t.Priority
		changed = append(changed, domain.FieldPriority)
	}
	return changed
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
