package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/followup/ticket-service/internal/domain"
	apperrors "github.com/followup/ticket-service/pkg/util/errorutil"
)

// RequireActor ensures an actor was resolved for the request.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromContext(c); !ok {
			return apperrors.NewAuthenticationRequired("an authenticated actor is required")
		}
		return c.Next()
	}
}

// RequireRole ensures the actor has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewAuthenticationRequired("an authenticated actor is required")
		}
		if _, exists := allowedSet[actor.Role]; !exists {
			return apperrors.NewPermissionDenied(c.Route().Path)
		}
		return c.Next()
	}
}
