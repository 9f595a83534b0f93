package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
	apperrors "github.com/followup/ticket-service/pkg/util/errorutil"
)

const (
	actorKey = "auth_actor"

	// APIKeyHeader carries "<key id>.<secret>" for service callers.
	APIKeyHeader = "X-API-Key"
	// tokenQueryParam lets websocket clients, which cannot set headers,
	// pass the bearer token.
	tokenQueryParam = "access_token"
)

// AuthMiddleware resolves the acting identity from a bearer token or an API
// key and stores it on the request.
type AuthMiddleware struct {
	tokens  *TokenManager
	apiKeys map[string]config.APIKeyConfig
	logger  *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, apiKeys []config.APIKeyConfig, logger *zap.Logger) *AuthMiddleware {
	keys := make(map[string]config.APIKeyConfig, len(apiKeys))
	for _, key := range apiKeys {
		keys[key.ID] = key
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, apiKeys: keys, logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if raw := c.Get(APIKeyHeader); raw != "" {
		actor, err := m.resolveAPIKey(raw)
		if err != nil {
			return err
		}
		c.Locals(actorKey, actor)
		return c.Next()
	}

	token, err := bearerToken(c)
	if err != nil {
		return err
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		m.logger.Debug("rejected bearer token", zap.Error(err))
		return apperrors.NewAuthenticationRequired("invalid token")
	}
	actor, err := claims.Actor()
	if err != nil {
		return apperrors.NewAuthenticationRequired(err.Error())
	}

	c.Locals(actorKey, actor)
	return c.Next()
}

func (m *AuthMiddleware) resolveAPIKey(raw string) (domain.Actor, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return domain.Actor{}, apperrors.NewAuthenticationRequired("malformed api key")
	}
	key, exists := m.apiKeys[id]
	if !exists || CompareSecret(key.Hash, secret) != nil {
		m.logger.Debug("rejected api key", zap.String("key_id", id))
		return domain.Actor{}, apperrors.NewAuthenticationRequired("invalid api key")
	}
	return domain.Actor{
		ID:     "apikey:" + key.ID,
		Name:   key.ID,
		Role:   domain.Role(strings.ToLower(key.Role)),
		Source: domain.ActorSourceAPIKey,
	}, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if token := c.Query(tokenQueryParam); token != "" {
			return token, nil
		}
		return "", apperrors.NewAuthenticationRequired("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewAuthenticationRequired("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}
