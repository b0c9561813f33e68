package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/conductor-oer/support-service/internal/api/http"
	"github.com/conductor-oer/support-service/internal/api/http/handlers"
	"github.com/conductor-oer/support-service/internal/auth"
	"github.com/conductor-oer/support-service/internal/config"
	"github.com/conductor-oer/support-service/internal/events"
	"github.com/conductor-oer/support-service/internal/observability"
	"github.com/conductor-oer/support-service/internal/persistence"
	"github.com/conductor-oer/support-service/internal/repository"
	"github.com/conductor-oer/support-service/internal/service"
	"github.com/conductor-oer/support-service/internal/worker"
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo     repository.TicketRepository
		messageRepo    repository.TicketMessageRepository
		feedRepo       repository.TicketFeedRepository
		attachmentRepo repository.AttachmentRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
		messageRepo = repository.NewTicketMessageRepository(pool)
		feedRepo = repository.NewTicketFeedRepository(pool)
		attachmentRepo = repository.NewAttachmentRepository(pool)
	} else {
		logger.Warn("no POSTGRES_DSN configured; using in-memory ticket store")
		store := repository.NewMemoryStore()
		ticketRepo = store.Tickets()
		messageRepo = store.Messages()
		feedRepo = store.Feed()
		attachmentRepo = store.Attachments()
	}

	dispatcher := events.NewInMemoryDispatcher()
	accessKeys := auth.NewAccessKeyManager(cfg.Auth.AccessKeyBcrypt)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		FeedRepo:       feedRepo,
		AttachmentRepo: attachmentRepo,
		AccessKeys:     accessKeys,
		Dispatcher:     dispatcher,
	})
	messageService := service.NewMessageService(ticketRepo, messageRepo, dispatcher)
	metricsService := service.NewMetricsService(ticketRepo, redis, cfg.Metrics.CacheTTL(), logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, messageService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService, metricsService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
