package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/followup/ticket-service/internal/api/http"
	"github.com/followup/ticket-service/internal/api/http/handlers"
	"github.com/followup/ticket-service/internal/auth"
	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/events"
	"github.com/followup/ticket-service/internal/observability"
	"github.com/followup/ticket-service/internal/persistence"
	"github.com/followup/ticket-service/internal/policy"
	"github.com/followup/ticket-service/internal/realtime"
	"github.com/followup/ticket-service/internal/repository"
	"github.com/followup/ticket-service/internal/service"
	"github.com/followup/ticket-service/internal/validation"
	"github.com/followup/ticket-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := persistence.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer stores.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	mqttClient, err := persistence.NewMQTT(cfg.MQTT, logger)
	if err != nil {
		logger.Fatal("failed to connect mqtt", zap.Error(err))
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
	}

	ticketRepo := repository.NewCachedTicketRepository(stores.Tickets, redis.Handle(), cfg.Redis.CacheTTL(), logger)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)
	worker.StartEventFanout(dispatcher, logger, eventSinks(cfg, redis, mqttClient, hub)...)

	accessPolicy, err := policy.FromConfig(cfg.Policy)
	if err != nil {
		logger.Fatal("failed to load policy", zap.Error(err))
	}

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:       ticketRepo,
		UserRepo:         stores.Users,
		Policy:           accessPolicy,
		Sanitizer:        validation.NewSanitizer(),
		Dispatcher:       dispatcher,
		Logger:           logger,
		WriteMode:        cfg.Lifecycle.WriteMode,
		MaxWriteAttempts: cfg.Lifecycle.MaxWriteAttempts,
	})
	directory := service.NewDirectoryService(stores.Users, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, cfg.Auth.APIKeys, logger)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	dependencies := map[string]handlers.Pinger{stores.Backend: stores}
	if redis != nil {
		dependencies["redis"] = redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, dependencies),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		Users:          handlers.NewUsersHandler(directory),
		Realtime:       handlers.NewRealtimeHandler(ctx, hub),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("ticket service started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("store", cfg.Store.Backend),
		zap.String("write_mode", cfg.Lifecycle.WriteMode))

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	cancel()
}

func eventSinks(cfg *config.Config, redis *persistence.Redis, mqttClient mqtt.Client, hub *realtime.Hub) []worker.Sink {
	sinks := []worker.Sink{{Name: "websocket", Handle: hub.Handle}}
	if client := redis.Handle(); client != nil {
		sinks = append(sinks, worker.Sink{
			Name:   "redis",
			Handle: events.NewRedisPublisher(client, cfg.Redis.EventsChannel).Handle,
		})
	}
	if mqttClient != nil {
		sinks = append(sinks, worker.Sink{
			Name:   "mqtt",
			Handle: events.NewMQTTPublisher(mqttClient, cfg.MQTT.TopicPrefix).Handle,
		})
	}
	return sinks
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
