package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/app"
	"ridehail/internal/auth"
	"ridehail/internal/config"
	"ridehail/internal/handler"
	"ridehail/internal/mq"
	internalRedis "ridehail/internal/redis"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/service"
)

func main() {
	cfg := config.Load()
	logger := app.NewLogger(os.Stdout, cfg.Log.Level)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic first so the database and Redis clients can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
			nrApp = nil
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := app.Migrate(ctx, db, logger); err != nil {
			return err
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	rabbit, err := app.NewRabbitMQ(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	if rabbit != nil {
		defer rabbit.Close()
	}

	eventBus := internalRedis.NewEventBus(redisClient)
	publishers := []service.EventPublisher{eventBus}
	if rabbit != nil {
		publishers = append(publishers, mq.NewTripEventPublisher(rabbit))
	}
	dispatcher := service.NewEventDispatcher(logger, cfg.Events.Buffer, cfg.Events.Workers, publishers...)

	server := wireServer(db, redisClient, eventBus, dispatcher, nrApp, cfg, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Handlers are done; deliver what they queued before the broker connections close.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("event dispatcher did not drain", "error", err)
	}

	logger.Info("server exited")
	return nil
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	eventBus *internalRedis.EventBus,
	dispatcher *service.EventDispatcher,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) *http.Server {
	// Initialize Redis stores.
	cacheStore := internalRedis.NewCacheStore(redisClient, cfg.Cache.TripListTTL)
	lockStore := internalRedis.NewLockStore(redisClient)
	idempotencyStore := internalRedis.NewIdempotencyStore(redisClient)
	denylist := internalRedis.NewTokenDenylist(redisClient)

	// Initialize repositories.
	userRepo := postgres.NewUserRepository(db)
	carRepo := postgres.NewCarRepository(db)
	tripRepo := postgres.NewTripRepository(db)
	reviewRepo := postgres.NewReviewRepository(db)

	// Initialize services.
	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	notificationService := service.NewNotificationService(dispatcher, logger)
	authService := service.NewAuthService(userRepo, tokens, denylist)
	tripService := service.NewTripService(tripRepo, carRepo, cacheStore, notificationService, logger)
	carService := service.NewCarService(carRepo)
	reviewService := service.NewReviewService(reviewRepo, userRepo, tripRepo)

	router := app.NewRouter(app.RouterDeps{
		AuthHandler:       handler.NewAuthHandler(authService),
		TripHandler:       handler.NewTripHandler(tripService),
		TripEventsHandler: handler.NewTripEventsHandler(tripService, eventBus, logger),
		CarHandler:        handler.NewCarHandler(carService),
		ReviewHandler:     handler.NewReviewHandler(reviewService),
		Authenticator:     authService,
		IdempotencyStore:  idempotencyStore,
		LockStore:         lockStore,
		HealthCheck: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
		Logger:      logger,
		NewRelicApp: nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
