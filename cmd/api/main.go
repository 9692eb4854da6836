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

	httptransport "github.com/spec-kit/ticket-desk/internal/api/http"
	"github.com/spec-kit/ticket-desk/internal/api/http/handlers"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/persistence"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/service"
	"github.com/spec-kit/ticket-desk/internal/worker"
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

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.InitTracing(cfg.App.Name, cfg.App.Version, logger)
		if err != nil {
			logger.Fatal("failed to init tracing", zap.Error(err))
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			_ = shutdownTracing(flushCtx)
		}()
	}

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.Migrations(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var notices repository.NoticeRepository
	if redis.Enabled() {
		notices = repository.NewRedisNoticeRepository(redis.Client, cfg.Redis.NoticeCap, cfg.Redis.NoticeTTL())
	} else {
		notices = repository.NewMemoryNoticeRepository(cfg.Redis.NoticeCap)
	}
	var journal repository.MutationJournalRepository
	if pg.Enabled() {
		journal = repository.NewMutationJournalRepository(pg.PoolHandle())
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, notices, logger)
	journalService := service.NewJournalService(dispatcher, journal, logger)
	worker.StartNotificationWorker(notificationService, journalService)

	sessions := service.NewSessionService(service.NewGatewayStoreFactory(service.StoreDependencies{
		GatewayBaseURL: cfg.Gateway.BaseURL,
		Timeout:        cfg.Gateway.Timeout(),
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	}), cfg.Session.IdleTTL(), logger, metrics)

	go worker.RunSessionReaper(ctx, sessions, cfg.Session.ReapInterval(), logger, func(ctx context.Context, key string) {
		if err := notificationService.Clear(ctx, key); err != nil {
			logger.Warn("clear notices for reaped session", zap.String("session", key), zap.Error(err))
		}
	})

	authClient := auth.NewClient(cfg.AuthService.BaseURL, nil, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authClient, sessions, notificationService, logger),
		Tickets:        handlers.NewTicketsHandler(sessions, journalService, time.Local),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
