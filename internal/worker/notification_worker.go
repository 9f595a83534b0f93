package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/followup/ticket-service/internal/events"
	"github.com/followup/ticket-service/internal/service"
)

// Sink is a named event consumer attached to the dispatcher.
type Sink struct {
	Name   string
	Handle events.EventHandler
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartEventFanout subscribes every sink to all lifecycle events. Sink
// failures are logged and swallowed so one broken transport cannot affect
// the others.
func StartEventFanout(dispatcher events.Dispatcher, logger *zap.Logger, sinks ...Sink) {
	if dispatcher == nil {
		return
	}
	for _, sink := range sinks {
		if sink.Handle == nil {
			continue
		}
		sink := sink
		events.SubscribeAll(dispatcher, func(ctx context.Context, event events.Event) error {
			if err := sink.Handle(ctx, event); err != nil {
				logger.Warn("event sink failed",
					zap.String("sink", sink.Name),
					zap.String("event_type", string(event.Type)),
					zap.String("ticket_id", event.TicketID),
					zap.Error(err))
			}
			return nil
		})
		logger.Info("event sink attached", zap.String("sink", sink.Name))
	}
}
