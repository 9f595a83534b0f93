package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/followup/ticket-service/internal/api/dto"
	"github.com/followup/ticket-service/internal/auth"
	"github.com/followup/ticket-service/internal/domain"
	"github.com/followup/ticket-service/internal/repository"
	"github.com/followup/ticket-service/internal/service"
	apperrors "github.com/followup/ticket-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

var sortParams = map[string]string{
	"created_at":       repository.SortCreatedAt,
	"updated_at":       repository.SortUpdatedAt,
	"escalation_level": repository.SortEscalationLevel,
}

// TicketsHandler exposes the ticket lifecycle over HTTP.
type TicketsHandler struct {
	service *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(service *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{service: service}
}

// Create handles POST /api/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	ticket, err := h.service.Create(c.UserContext(), actor, service.CreateTicketInput{
		IncNumber:   req.IncNumber,
		MSISDN:      req.MSISDN,
		SubmittedBy: req.SubmittedBy,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// List handles GET /api/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	filter, page, pageSize, err := parseListFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	summaries := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		summaries = append(summaries, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{
		"data": summaries,
		"meta": fiber.Map{"page": page, "page_size": pageSize, "count": len(summaries)},
	})
}

// Get handles GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Edit handles PATCH /api/tickets/:id.
func (h *TicketsHandler) Edit(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	ticket, err := h.service.Edit(c.UserContext(), actor, c.Params("id"), service.EditTicketInput{
		IncNumber:   req.IncNumber,
		MSISDN:      req.MSISDN,
		SubmittedBy: req.SubmittedBy,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Delete handles DELETE /api/tickets/:id. The ticket is soft deleted.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Delete(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Escalate handles POST /api/tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	req, err := parseNote(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Escalate(c.UserContext(), actor, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Close handles POST /api/tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	req, err := parseNote(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Close(c.UserContext(), actor, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Assign handles POST /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	ticket, err := h.service.Assign(c.UserContext(), actor, c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// AddComment handles POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	comment, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// History handles GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewAuthenticationRequired("an authenticated actor is required")
	}
	return actor, nil
}

// parseNote accepts an empty body since the note is optional.
func parseNote(c *fiber.Ctx) (dto.NoteRequest, error) {
	var req dto.NoteRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, invalidPayload(err)
	}
	return req, nil
}

func invalidPayload(err error) error {
	return apperrors.NewValidationError("invalid payload", map[string]string{"body": err.Error()})
}

func parseListFilter(c *fiber.Ctx) (service.TicketListFilter, int, int, error) {
	var filter service.TicketListFilter
	problems := map[string]string{}

	if v := c.Query("status"); v != "" {
		status := domain.TicketStatus(strings.ToLower(v))
		switch status {
		case domain.TicketStatusOpen, domain.TicketStatusClosed, domain.TicketStatusDeleted:
			filter.Status = &status
		default:
			problems["status"] = "must be one of open, closed, deleted"
		}
	}
	if v := c.Query("priority"); v != "" {
		priority := domain.TicketPriority(strings.ToLower(v))
		if priority.Valid() {
			filter.Priority = &priority
		} else {
			problems["priority"] = "must be one of low, normal, high"
		}
	}
	if v := c.Query("assigned_to"); v != "" {
		filter.AssignedTo = &v
	}
	if v := c.Query("created_by"); v != "" {
		filter.CreatedBy = &v
	}
	if v := c.Query("escalation_level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil || level < domain.MinEscalationLevel || level > domain.MaxEscalationLevel {
			problems["escalation_level"] = "must be an integer between 1 and 5"
		} else {
			filter.EscalationLevel = &level
		}
	}
	filter.IncludeDeleted = c.QueryBool("include_deleted", false)

	if v := c.Query("sort"); v != "" {
		field, ok := sortParams[strings.ToLower(v)]
		if !ok {
			problems["sort"] = "must be one of created_at, updated_at, escalation_level"
		}
		filter.SortField = field
	}
	switch strings.ToLower(c.Query("order", "desc")) {
	case "asc":
		filter.Ascending = true
	case "desc":
	default:
		problems["order"] = "must be asc or desc"
	}

	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	if len(problems) > 0 {
		return filter, page, pageSize, apperrors.NewValidationError("invalid query parameters", problems)
	}
	return filter, page, pageSize, nil
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
