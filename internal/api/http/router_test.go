package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/api/http/handlers"
	"github.com/followup/ticket-service/internal/auth"
	"github.com/followup/ticket-service/internal/domain"
	"github.com/followup/ticket-service/internal/observability"
	"github.com/followup/ticket-service/internal/policy"
	"github.com/followup/ticket-service/internal/repository"
	"github.com/followup/ticket-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	admin  string
	agent  string
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	users := repository.NewMemoryUserRepository()
	if err := users.Upsert(context.Background(), &domain.User{ID: "user-7", Email: "seven@example.com", Name: "Seven", Role: domain.RoleAgent, Active: true}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo: repository.NewMemoryTicketRepository(),
		UserRepo:   users,
		Policy: policy.New(map[policy.Operation][]domain.Role{
			policy.OpDelete: {domain.RoleAdmin},
			policy.OpAssign: {domain.RoleAdmin, domain.RolePod},
		}),
		Logger: logger,
	})
	tokens := auth.NewTokenManager("router-test-secret", 5)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("followup", "test", metrics, nil),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		Users:          handlers.NewUsersHandler(service.NewDirectoryService(users, logger)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, nil, logger),
	})

	mint := func(actor domain.Actor) string {
		token, _, err := tokens.GenerateToken(actor)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		return token
	}
	return &testServer{
		app:    app,
		tokens: tokens,
		admin:  mint(domain.Actor{ID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin}),
		agent:  mint(domain.Actor{ID: "agent-1", Email: "agent@example.com", Role: domain.RoleAgent}),
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, env
}

func validTicketBody() map[string]any {
	return map[string]any{
		"inc_number":   "987654321",
		"msisdn":       "15550001111",
		"submitted_by": "Sam Ops",
		"description":  "Customer reports dropped calls downtown",
	}
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func TestHealthLive(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, "GET", "/health/live", "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status: got %d", status)
	}
}

func TestTicketRoutesRequireAuthentication(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, "POST", "/api/tickets", "", validTicketBody())
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status: got %d", status)
	}
	if env.Error == nil || env.Error.Code != "AUTHENTICATION_REQUIRED" {
		t.Fatalf("unexpected error envelope %+v", env.Error)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, "POST", "/api/tickets", s.agent, validTicketBody())
	if status != fiber.StatusCreated {
		t.Fatalf("create status: got %d (%+v)", status, env.Error)
	}
	var created struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		Priority        string `json:"priority"`
		EscalationLevel int    `json:"escalation_level"`
	}
	decodeData(t, env, &created)
	if created.ID == "" || created.Status != "open" || created.Priority != "normal" || created.EscalationLevel != 1 {
		t.Fatalf("unexpected created ticket %+v", created)
	}
	base := "/api/tickets/" + created.ID

	status, env = s.do(t, "POST", base+"/escalate", s.agent, map[string]string{"note": "no response from field team"})
	if status != fiber.StatusOK {
		t.Fatalf("escalate status: got %d (%+v)", status, env.Error)
	}
	var escalated struct {
		EscalationLevel int `json:"escalation_level"`
	}
	decodeData(t, env, &escalated)
	if escalated.EscalationLevel != 2 {
		t.Errorf("level: got %d, want 2", escalated.EscalationLevel)
	}

	status, env = s.do(t, "POST", base+"/assign", s.admin, map[string]string{"user_id": "user-7"})
	if status != fiber.StatusOK {
		t.Fatalf("assign status: got %d (%+v)", status, env.Error)
	}

	status, env = s.do(t, "POST", base+"/comments", s.agent, map[string]string{"text": "Called the customer back"})
	if status != fiber.StatusCreated {
		t.Fatalf("comment status: got %d (%+v)", status, env.Error)
	}

	status, env = s.do(t, "POST", base+"/close", s.agent, nil)
	if status != fiber.StatusOK {
		t.Fatalf("close status: got %d (%+v)", status, env.Error)
	}

	status, env = s.do(t, "POST", base+"/escalate", s.agent, nil)
	if status != fiber.StatusConflict || env.Error.Code != "INVALID_TRANSITION" {
		t.Fatalf("escalate closed: got %d %+v", status, env.Error)
	}

	status, env = s.do(t, "GET", base+"/history", s.agent, nil)
	if status != fiber.StatusOK {
		t.Fatalf("history status: got %d", status)
	}
	var history []struct {
		Action string `json:"action"`
	}
	decodeData(t, env, &history)
	want := []string{"created", "escalated", "assigned", "closed"}
	if len(history) != len(want) {
		t.Fatalf("history: got %+v", history)
	}
	for i, action := range want {
		if history[i].Action != action {
			t.Errorf("history[%d]: got %s, want %s", i, history[i].Action, action)
		}
	}

	status, env = s.do(t, "GET", "/api/tickets?status=closed", s.agent, nil)
	if status != fiber.StatusOK {
		t.Fatalf("list status: got %d", status)
	}
	var listed []struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Errorf("list: got %+v", listed)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	s := newTestServer(t)
	body := validTicketBody()
	body["inc_number"] = "12"
	status, env := s.do(t, "POST", "/api/tickets", s.agent, body)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status: got %d", status)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("unexpected error %+v", env.Error)
	}
	if _, ok := env.Error.Details["incNumber"]; !ok {
		t.Errorf("expected incNumber detail, got %v", env.Error.Details)
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, "POST", "/api/tickets", s.agent, validTicketBody())
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &created)

	status, env := s.do(t, "DELETE", "/api/tickets/"+created.ID, s.agent, nil)
	if status != fiber.StatusForbidden || env.Error.Code != "PERMISSION_DENIED" {
		t.Fatalf("agent delete: got %d %+v", status, env.Error)
	}

	status, env = s.do(t, "DELETE", "/api/tickets/"+created.ID, s.admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("admin delete: got %d %+v", status, env.Error)
	}

	status, env = s.do(t, "GET", "/api/tickets", s.agent, nil)
	if status != fiber.StatusOK {
		t.Fatalf("list status: got %d", status)
	}
	var listed []json.RawMessage
	decodeData(t, env, &listed)
	if len(listed) != 0 {
		t.Errorf("deleted ticket should be hidden, got %d", len(listed))
	}
}

func TestUnknownTicketAndBadQuery(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, "GET", "/api/tickets/does-not-exist", s.agent, nil)
	if status != fiber.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("unknown ticket: got %d %+v", status, env.Error)
	}

	status, env = s.do(t, "GET", "/api/tickets?status=pending&sort=owner", s.agent, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("bad query: got %d", status)
	}
	for _, field := range []string{"status", "sort"} {
		if _, ok := env.Error.Details[field]; !ok {
			t.Errorf("expected %s detail, got %v", field, env.Error.Details)
		}
	}

	status, env = s.do(t, "GET", "/nowhere", "", nil)
	if status != fiber.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("unmatched route: got %d %+v", status, env.Error)
	}
}

func TestMetricsRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "GET", "/health/live", "", nil)

	status, _ := s.do(t, "GET", "/health/metrics", s.agent, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("agent metrics: got %d", status)
	}

	status, env := s.do(t, "GET", "/health/metrics", s.admin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("admin metrics: got %d", status)
	}
	var snap observability.Snapshot
	decodeData(t, env, &snap)
	if len(snap.Requests) == 0 {
		t.Error("expected recorded requests")
	}
}

func TestUserDirectoryRoutes(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"email": "new@example.com", "name": "New Hire", "role": "agent"}

	status, _ := s.do(t, "PUT", "/api/users/user-8", s.agent, body)
	if status != fiber.StatusForbidden {
		t.Fatalf("agent upsert: got %d", status)
	}

	status, env := s.do(t, "PUT", "/api/users/user-8", s.admin, body)
	if status != fiber.StatusOK {
		t.Fatalf("admin upsert: got %d %+v", status, env.Error)
	}

	status, env = s.do(t, "GET", "/api/users/user-8", s.agent, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get user: got %d", status)
	}
	var user struct {
		Email  string `json:"email"`
		Active bool   `json:"active"`
	}
	decodeData(t, env, &user)
	if user.Email != "new@example.com" || !user.Active {
		t.Errorf("unexpected user %+v", user)
	}
}
