package auth

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
	apperrors "github.com/followup/ticket-service/pkg/util/errorutil"
)

func newTestApp(t *testing.T, tokens *TokenManager, keys []config.APIKeyConfig) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var domainErr *apperrors.DomainError
			if errors.As(err, &domainErr) {
				return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
			}
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		},
	})
	mw := NewAuthMiddleware(tokens, keys, nil)
	app.Get("/whoami", mw.Handle, RequireActor(), func(c *fiber.Ctx) error {
		actor, _ := ActorFromContext(c)
		return c.SendString(actor.ID + "|" + string(actor.Role) + "|" + string(actor.Source))
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager("test-secret", 5)
	token, expiresAt, err := tokens.GenerateToken(domain.Actor{ID: "u-1", Email: "a@example.com", Role: domain.RolePod})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatal("expected expiry")
	}

	claims, err := tokens.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	actor, err := claims.Actor()
	if err != nil {
		t.Fatalf("Actor: %v", err)
	}
	if actor.ID != "u-1" || actor.Role != domain.RolePod || actor.Source != domain.ActorSourceToken {
		t.Errorf("got %+v", actor)
	}

	if _, err := NewTokenManager("other-secret", 5).ParseToken(token); err == nil {
		t.Error("expected signature mismatch")
	}
}

func TestClaimsWithoutRoleAreRejected(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "u-1"
	if _, err := claims.Actor(); err == nil {
		t.Fatal("expected error for missing role")
	}
}

func TestAuthMiddleware(t *testing.T) {
	tokens := NewTokenManager("test-secret", 5)
	agentToken, _, err := tokens.GenerateToken(domain.Actor{ID: "u-2", Role: domain.RoleAgent})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	app := newTestApp(t, tokens, []config.APIKeyConfig{{ID: "monitor", Role: "admin", Hash: string(hash)}})

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", path: "/whoami", wantStatus: 401, wantBody: apperrors.CodeAuthenticationRequired},
		{name: "wrong scheme", path: "/whoami", headers: map[string]string{"Authorization": "Basic abc"}, wantStatus: 401},
		{name: "garbage token", path: "/whoami", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: 401},
		{name: "bearer token", path: "/whoami", headers: map[string]string{"Authorization": "Bearer " + agentToken}, wantStatus: 200, wantBody: "u-2|agent|token"},
		{name: "query token", path: "/whoami?access_token=" + agentToken, wantStatus: 200, wantBody: "u-2|agent|token"},
		{name: "api key", path: "/whoami", headers: map[string]string{APIKeyHeader: "monitor.s3cret"}, wantStatus: 200, wantBody: "apikey:monitor|admin|api_key"},
		{name: "bad api key secret", path: "/whoami", headers: map[string]string{APIKeyHeader: "monitor.wrong"}, wantStatus: 401},
		{name: "malformed api key", path: "/whoami", headers: map[string]string{APIKeyHeader: "monitor"}, wantStatus: 401},
		{name: "role gate denies agent", path: "/admin", headers: map[string]string{"Authorization": "Bearer " + agentToken}, wantStatus: 403, wantBody: apperrors.CodePermissionDenied},
		{name: "role gate admits admin key", path: "/admin", headers: map[string]string{APIKeyHeader: "monitor.s3cret"}, wantStatus: 200, wantBody: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, tt.path, tt.headers)
			if status != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (body %q)", status, tt.wantStatus, body)
			}
			if tt.wantBody != "" && body != tt.wantBody {
				t.Errorf("body: got %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestSecretHashing(t *testing.T) {
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if len(secret) != 48 {
		t.Errorf("secret length: got %d, want 48", len(secret))
	}
	hash, err := HashSecret(secret, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if err := CompareSecret(hash, secret); err != nil {
		t.Errorf("CompareSecret: %v", err)
	}
	if err := CompareSecret(hash, "other"); err == nil {
		t.Error("expected mismatch")
	}
}
