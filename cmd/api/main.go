package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/hra-case-service/internal/api/http"
	"github.com/spec-kit/hra-case-service/internal/api/http/handlers"
	"github.com/spec-kit/hra-case-service/internal/auth"
	"github.com/spec-kit/hra-case-service/internal/config"
	"github.com/spec-kit/hra-case-service/internal/events"
	"github.com/spec-kit/hra-case-service/internal/observability"
	"github.com/spec-kit/hra-case-service/internal/persistence"
	"github.com/spec-kit/hra-case-service/internal/repository"
	"github.com/spec-kit/hra-case-service/internal/service"
	"github.com/spec-kit/hra-case-service/internal/worker"
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
	caseRepo := repository.NewCaseRepository(pool)
	historyRepo := repository.NewCaseHistoryRepository(pool)
	directoryRepo := repository.NewDirectoryRepository(pool)
	jobRepo := repository.NewBulkJobRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	progressCache := persistence.NewJobProgressCache(redis)
	_ = service.NewNotificationService(dispatcher, progressCache, logger)

	assignmentService := service.NewAssignmentService(directoryRepo, cfg.Assignment.BindMaxRetries)
	workflowService := service.NewWorkflowService(cfg.Workflow, service.WorkflowDependencies{
		CaseRepo:    caseRepo,
		HistoryRepo: historyRepo,
		Assignment:  assignmentService,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	})
	bulkService := service.NewBulkService(cfg.Bulk, jobRepo, workflowService, dispatcher, metrics, logger)
	runner := worker.NewRunner(cfg.Bulk, bulkService, dispatcher, logger)
	defer runner.Shutdown()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, 0)
	authMiddleware := auth.NewAuthMiddleware(tokens, directoryRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Cases:          handlers.NewCasesHandler(workflowService),
		Jobs:           handlers.NewJobsHandler(bulkService, runner, progressCache),
		Directory:      handlers.NewDirectoryHandler(directoryRepo),
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
