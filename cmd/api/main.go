package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/service-workflow/internal/api/http"
	"github.com/spec-kit/service-workflow/internal/api/http/handlers"
	"github.com/spec-kit/service-workflow/internal/auth"
	"github.com/spec-kit/service-workflow/internal/config"
	"github.com/spec-kit/service-workflow/internal/events"
	"github.com/spec-kit/service-workflow/internal/observability"
	"github.com/spec-kit/service-workflow/internal/persistence"
	"github.com/spec-kit/service-workflow/internal/repository"
	"github.com/spec-kit/service-workflow/internal/service"
	"github.com/spec-kit/service-workflow/internal/sla"
	"github.com/spec-kit/service-workflow/internal/worker"
	"github.com/spec-kit/service-workflow/internal/workflow"
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketStore := repository.NewTicketStore(pool)
	technicianRepo := repository.NewTechnicianRepository(pool)
	quotationRepo := repository.NewQuotationRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	slaClock := sla.NewClock()

	engine := workflow.NewEngine(workflow.Dependencies{
		Store:       ticketStore,
		Quotations:  quotationRepo,
		Directory:   technicianRepo,
		Attachments: attachmentRepo,
		Policies:    policyRepo,
		Locker:      persistence.NewRedisTicketLocker(redis.Client, cfg.Workflow.LockTTL(), logger),
		Dispatcher:  dispatcher,
		Clock:       slaClock,
		Logger:      logger,
	}, workflow.Options{
		RequireAcceptance:     cfg.Workflow.RequireAcceptance,
		RequireRepairEvidence: cfg.Workflow.RequireRepairEvidence,
	})

	authService := service.NewAuthService(*cfg, technicianRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), technicianRepo)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	sweeper := worker.NewSLASweeper(ticketStore, policyRepo, slaClock, dispatcher, logger, cfg.SLA)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("failed to start sla sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Workflow:       handlers.NewWorkflowHandler(engine, metrics),
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
