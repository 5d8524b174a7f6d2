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

	httptransport "github.com/sail-program/sail-gateway/internal/api/http"
	"github.com/sail-program/sail-gateway/internal/authstub"
	"github.com/sail-program/sail-gateway/internal/config"
	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/persistence"
	"github.com/sail-program/sail-gateway/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("authstub refuses to run with APP_ENV=production")
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	tokens := authstub.NewTokenManager(
		cfg.Stub.JWTSecret,
		time.Duration(cfg.Stub.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.Stub.RefreshTTLHours)*time.Hour,
	)
	ctx := context.Background()

	accountRepo := repository.NewMemoryAccountRepository()
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("migrations failed", zap.Error(err))
			}
		}
		accountRepo = repository.NewAccountRepository(pg.PoolHandle())
	}

	server := authstub.NewServer(authstub.NewAccounts(accountRepo, cfg.Stub.BcryptCost), tokens, logger)
	if cfg.Stub.SeedAdminPass != "" {
		if err := server.Seed(ctx, cfg.Stub.SeedAdminEmail, cfg.Stub.SeedAdminPass, domain.RoleAdmin); err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		logger.Info("seeded admin account", zap.String("email", cfg.Stub.SeedAdminEmail))
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      "sail-authstub",
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, 0)
	server.Register(app.Group("/api"))

	go func() {
		if err := app.Listen(cfg.Stub.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
	_ = app.Shutdown()
}
