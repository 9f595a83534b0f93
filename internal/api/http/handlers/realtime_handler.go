package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/followup/ticket-service/internal/realtime"
)

// RealtimeHandler streams ticket events to websocket subscribers.
type RealtimeHandler struct {
	ctx context.Context
	hub *realtime.Hub
}

// NewRealtimeHandler constructs handler. ctx should be the context the hub
// runs under so registrations stop blocking once it shuts down.
func NewRealtimeHandler(ctx context.Context, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{ctx: ctx, hub: hub}
}

// Upgrade rejects plain HTTP requests to the websocket endpoint.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Stream returns the websocket handler. Incoming messages are read and
// discarded; the loop ends when the client goes away.
func (h *RealtimeHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		h.hub.Register(h.ctx, conn)
		defer h.hub.Unregister(h.ctx, conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
