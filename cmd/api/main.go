package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/campuscare/counseling-service/internal/api/http"
	"github.com/campuscare/counseling-service/internal/api/http/handlers"
	"github.com/campuscare/counseling-service/internal/auth"
	"github.com/campuscare/counseling-service/internal/config"
	"github.com/campuscare/counseling-service/internal/events"
	"github.com/campuscare/counseling-service/internal/live"
	"github.com/campuscare/counseling-service/internal/observability"
	"github.com/campuscare/counseling-service/internal/persistence"
	"github.com/campuscare/counseling-service/internal/repository"
	"github.com/campuscare/counseling-service/internal/service"
	"github.com/campuscare/counseling-service/internal/worker"
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
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	crisisRepo := repository.NewCrisisEventRepository(pool)
	assessmentRepo := repository.NewAssessmentRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	locks := service.NewTicketLocks(cfg.Live.LockTimeout())
	registry := live.NewRegistry(logger)
	cursors := live.NewNoopCursorStore()
	if cfg.Redis.Addr != "" {
		cursors = live.NewRedisCursorStore(redis.Client)
	}

	feedWorker := worker.NewEventFeedWorker(redis.Client, logger)
	feedWorker.Register(dispatcher)

	ticketService := service.NewTicketService(service.TicketServiceDependencies{
		Tickets:    ticketRepo,
		History:    historyRepo,
		Users:      userRepo,
		Locks:      locks,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentServiceDependencies{
		Tickets:    ticketRepo,
		History:    historyRepo,
		Users:      userRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(cfg.Notification, logger)
	crisisService := service.NewCrisisService(service.CrisisServiceDependencies{
		CrisisEvents: crisisRepo,
		Tickets:      ticketRepo,
		Assessments:  assessmentRepo,
		TicketSvc:    ticketService,
		Locks:        locks,
		Matcher:      service.NewKeywordMatcher(cfg.Crisis),
		Notifier:     notificationService,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	messageService := service.NewMessageService(service.MessageServiceDependencies{
		Tickets:     ticketRepo,
		Messages:    messageRepo,
		TicketSvc:   ticketService,
		Crisis:      crisisService,
		Registry:    registry,
		Cursors:     cursors,
		Locks:       locks,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		ReplayLimit: cfg.Live.ReplayLimit,
	})

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, userRepo)

	liveHandler := live.NewHandler(messageService, authMiddleware, live.HandlerConfig{
		OutboundBufferSize: cfg.Live.OutboundBufferSize,
		WriteTimeout:       cfg.Live.WriteTimeout(),
	}, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService, messageService),
		Crisis:         handlers.NewCrisisHandler(crisisService),
		Assessments:    handlers.NewAssessmentsHandler(crisisService),
		Live:           liveHandler,
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
