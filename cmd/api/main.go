package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/portal-service/internal/api/http"
	"github.com/spec-kit/portal-service/internal/api/http/handlers"
	"github.com/spec-kit/portal-service/internal/config"
	"github.com/spec-kit/portal-service/internal/dispatch"
	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
	"github.com/spec-kit/portal-service/internal/gate"
	"github.com/spec-kit/portal-service/internal/notify"
	"github.com/spec-kit/portal-service/internal/observability"
	"github.com/spec-kit/portal-service/internal/persistence"
	"github.com/spec-kit/portal-service/internal/repository"
	"github.com/spec-kit/portal-service/internal/service"
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

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	accountRepo := repository.NewAccountRepository(pool)
	quoteRepo := repository.NewQuoteRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	bus := events.NewInMemoryDispatcher()

	accountService := service.NewAccountService(*cfg, accountRepo)
	provisioningService := service.NewProvisioningService(accountRepo, quoteRepo, bus, logger)
	quoteService := service.NewQuoteService(quoteRepo, accountRepo, provisioningService, bus, logger)
	taskService := service.NewTaskService(taskRepo, accountRepo, bus, logger)

	emailSender := notify.NewLogEmailSender(logger, cfg.Notification)
	inAppStore := notify.NewInAppStore(redis.Client, cfg.Notification.FeedMaxEntries)

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, notificationRepo, accountRepo, emailSender, inAppStore, redis.Client, logger, metrics)
	dispatcher.RegisterHandlers(bus)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()
	go provisioningService.ReconcileLoop(ctx, 5*time.Minute)

	portalGate := gate.New(domain.DefaultPortals)
	gateMiddleware := gate.NewMiddleware(portalGate, accountService.TokenManager(), accountRepo, logger, metrics)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(),
		Auth:          handlers.NewAuthHandler(accountService),
		Accounts:      handlers.NewAccountsHandler(accountService),
		Quotes:        handlers.NewQuotesHandler(quoteService),
		Tasks:         handlers.NewTasksHandler(taskService),
		Notifications: handlers.NewNotificationsHandler(inAppStore, notificationRepo),
		Gate:          gateMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()

	// In-flight delivery attempts finish before the pool and Redis close.
	<-dispatcherDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
