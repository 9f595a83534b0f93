package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/followup/ticket-service/internal/api/dto"
	"github.com/followup/ticket-service/internal/service"
)

// UsersHandler exposes the assignee directory.
type UsersHandler struct {
	directory *service.DirectoryService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(directory *service.DirectoryService) *UsersHandler {
	return &UsersHandler{directory: directory}
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.directory.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Upsert handles PUT /api/users/:id. Active defaults to true.
func (h *UsersHandler) Upsert(c *fiber.Ctx) error {
	var req dto.UpsertUserRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	user, err := h.directory.Upsert(c.UserContext(), c.Params("id"), service.UpsertUserInput{
		Email:  req.Email,
		Name:   req.Name,
		Role:   req.Role,
		Active: active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}
