package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"ridehail/internal/domain"
	"ridehail/internal/handler"
	"ridehail/internal/middleware"
	"ridehail/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	AuthHandler       *handler.AuthHandler
	TripHandler       *handler.TripHandler
	TripEventsHandler *handler.TripEventsHandler
	CarHandler        *handler.CarHandler
	ReviewHandler     *handler.ReviewHandler

	Authenticator    middleware.Authenticator
	IdempotencyStore redis.IdempotencyStoreInterface
	LockStore        redis.LockStoreInterface

	// HealthCheck reports whether backing services are reachable. Optional.
	HealthCheck func(ctx context.Context) error

	Logger      *slog.Logger
	NewRelicApp *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SlogLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.WarnContext(c.Request.Context(), "health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	idempotency := middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.LockStore, deps.Logger)
	authenticated := middleware.AuthMiddleware(deps.Authenticator, deps.Logger)
	passenger := middleware.RequireRole(domain.RolePassenger)
	driver := middleware.RequireRole(domain.RoleDriver)

	v1 := router.Group("/v1")

	// Public routes. They issue credentials, so responses are never replayed.
	public := v1.Group("")
	{
		public.POST("/register", deps.AuthHandler.Register)
		public.POST("/login", deps.AuthHandler.Login)
		public.GET("/trips/available", deps.TripHandler.ListAvailable)
	}

	// Any signed-in user.
	user := v1.Group("", authenticated, idempotency)
	{
		user.POST("/logout", deps.AuthHandler.Logout)
		user.GET("/me", deps.AuthHandler.Me)

		user.GET("/trips", deps.TripHandler.List)
		user.GET("/trips/:id", deps.TripHandler.Get)
		user.GET("/trips/:id/events", deps.TripEventsHandler.Stream)

		user.GET("/reviews/:driverId", deps.ReviewHandler.ListForDriver)
	}

	// Passenger routes.
	passengers := v1.Group("", authenticated, passenger, idempotency)
	{
		passengers.POST("/trips", deps.TripHandler.Create)
		passengers.PUT("/trips/:id", deps.TripHandler.Update)
		passengers.DELETE("/trips/:id", deps.TripHandler.Cancel)
		passengers.POST("/trips/:id/cancel", deps.TripHandler.Cancel)

		passengers.POST("/reviews/:driverId", deps.ReviewHandler.Create)
	}

	// Driver routes.
	drivers := v1.Group("", authenticated, driver, idempotency)
	{
		drivers.POST("/trips/:id/accept", deps.TripHandler.Accept)
		drivers.POST("/trips/:id/reject", deps.TripHandler.Reject)
		drivers.POST("/trips/:id/start", deps.TripHandler.Start)
		drivers.POST("/trips/:id/complete", deps.TripHandler.Complete)

		drivers.POST("/cars", deps.CarHandler.Create)
		drivers.GET("/cars", deps.CarHandler.List)
		drivers.PUT("/cars/:id", deps.CarHandler.Update)
		drivers.DELETE("/cars/:id", deps.CarHandler.Delete)
	}

	return router
}
