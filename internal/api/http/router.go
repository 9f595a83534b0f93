package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/followup/ticket-service/internal/api/http/handlers"
	"github.com/followup/ticket-service/internal/auth"
	"github.com/followup/ticket-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration. Realtime is
// optional.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Users          *handlers.UsersHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), cfg.Health.Metrics)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireActor())

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Patch("/:id", cfg.Tickets.Edit)
	tickets.Delete("/:id", cfg.Tickets.Delete)
	tickets.Post("/:id/escalate", cfg.Tickets.Escalate)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/assign", cfg.Tickets.Assign)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/history", cfg.Tickets.History)

	users := api.Group("/users")
	users.Get("/:id", cfg.Users.Get)
	users.Put("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.Upsert)

	if cfg.Realtime != nil {
		app.Get("/ws/tickets", cfg.Realtime.Upgrade, cfg.AuthMiddleware.Handle, auth.RequireActor(), cfg.Realtime.Stream())
	}
}
