package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
	"github.com/followup/ticket-service/internal/events"
)

// NotificationService turns lifecycle events into outbound notifications.
// Email and webhook delivery are stubs that only log what would be sent.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events. Every event goes to the webhook;
// assignments mail the assignee and escalations into the high priority band
// mail the escalation desk.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.sendWebhookNotificationStub)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok || payload.ToLevel < domain.HighPriorityLevel {
		return nil
	}
	n.logger.Info("ticket reached high priority band",
		zap.String("ticket_id", event.TicketID),
		zap.Int("level", payload.ToLevel))
	n.sendEmailNotificationStub(ctx, n.cfg.EscalationEmail, event)
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	n.sendEmailNotificationStub(ctx, payload.AssigneeEmail, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, to string, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || strings.TrimSpace(to) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
	return nil
}
