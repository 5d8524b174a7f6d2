package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httptransport "github.com/sail-program/sail-gateway/internal/api/http"
	"github.com/sail-program/sail-gateway/internal/api/http/handlers"
	"github.com/sail-program/sail-gateway/internal/auth"
	"github.com/sail-program/sail-gateway/internal/authclient"
	"github.com/sail-program/sail-gateway/internal/config"
	"github.com/sail-program/sail-gateway/internal/events"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/persistence"
	"github.com/sail-program/sail-gateway/internal/policy"
	"github.com/sail-program/sail-gateway/internal/querycache"
	"github.com/sail-program/sail-gateway/internal/service"
	"github.com/sail-program/sail-gateway/internal/session"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
	"github.com/sail-program/sail-gateway/internal/worker"
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

	if cfg.Auth.DevBypass {
		logger.Warn("AUTH_DEV_BYPASS enabled: sessions are admitted without verification or role checks")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := map[string]handlers.Pinger{}
	backends := tokenstore.Backends{}
	var redisClient redis.UniversalClient

	if cfg.Session.StoreDriver == config.StoreDriverRedis || cfg.Cache.Driver == config.StoreDriverRedis {
		rdb := persistence.NewRedis(cfg.Redis, logger)
		defer rdb.Close()
		redisClient = rdb.Client
		backends.Redis = rdb.Client
		deps["redis"] = rdb
	}

	var purger worker.Purger
	if cfg.Session.StoreDriver == config.StoreDriverPostgres {
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
		backends.Postgres = pg.PoolHandle()
		deps["postgres"] = pg
	}

	store, err := tokenstore.New(cfg.Session, backends)
	if err != nil {
		logger.Fatal("failed to build token store", zap.Error(err))
	}
	if pgStore, ok := store.(*tokenstore.PostgresStore); ok {
		purger = pgStore
	}

	cache, err := querycache.New(cfg.Cache, cfg.Session.KeyPrefix, redisClient)
	if err != nil {
		logger.Fatal("failed to build query cache", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartSessionEventWorker(service.NewSessionEventService(dispatcher, cache, logger))

	// Per-call deadlines come from the guard; the client-level timeout only
	// bounds calls made without one.
	authAPI := authclient.New(cfg.Auth.APIBaseURL, &http.Client{Timeout: 30 * time.Second})

	tracker := session.NewTracker()
	guard := session.NewGuard(session.Dependencies{
		Store:   store,
		API:     authAPI,
		Policy:  policy.DefaultRoutePolicy(),
		Tracker: tracker,
		Events:  dispatcher,
		Logger:  logger,
		Metrics: metrics,
	}, session.Options{
		VerifyTimeout:  cfg.Auth.VerifyTimeout,
		RefreshTimeout: cfg.Auth.RefreshTimeout,
		GracePeriod:    cfg.Auth.GracePeriod,
		DevBypass:      cfg.Auth.DevBypass,
	})

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		API:     authAPI,
		Store:   store,
		Tracker: tracker,
		Events:  dispatcher,
		Logger:  logger,
	})
	sessions := auth.NewSessions(cfg.Session)

	janitor := worker.NewJanitor(tracker, purger, 5*time.Minute, cfg.Auth.GracePeriod+time.Hour, logger)
	go janitor.Run(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps, metrics, tracker),
		Auth:    handlers.NewAuthHandler(authService, sessions),
		Session: handlers.NewSessionHandler(guard, store, sessions),
		Views:   handlers.NewViewsHandler(),
		Proxy: handlers.NewProxyHandler(handlers.ProxyConfig{
			Upstream:   cfg.Upstream.APIBaseURL,
			MountPoint: "/api",
			Timeout:    cfg.App.RequestTimeout(),
		}, store, cache, logger),
		Guard: auth.NewGuardMiddleware(guard, sessions),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
