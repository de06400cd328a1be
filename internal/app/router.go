package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/handler"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	RiderHandler  *handler.RiderHandler
	WSHandler     *handler.WSHandler
	HealthHandler *handler.HealthHandler
	RedisClient   redis.Cmdable
	NewRelicApp   *newrelic.Application
	Logger        logger.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	router.Use(middleware.ErrorReporter(log))

	router.GET("/health", deps.HealthHandler.Health)

	v1 := router.Group("/v1")

	// WebSocket upgrades bypass idempotency replay.
	v1.GET("/ws", deps.WSHandler.Subscribe)

	api := v1.Group("")
	api.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	{
		riders := api.Group("/riders")
		{
			riders.POST("/register", deps.RiderHandler.Register)
			riders.GET("/:id", deps.RiderHandler.Get)
		}

		rides := api.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
		}

		drivers := api.Group("/drivers")
		{
			drivers.POST("/register", deps.DriverHandler.Register)
			drivers.GET("/:id", deps.DriverHandler.Get)
			drivers.POST("/:id/location", deps.DriverHandler.UpdateLocation)
			drivers.POST("/:id/online", deps.DriverHandler.GoOnline)
			drivers.POST("/:id/offline", deps.DriverHandler.GoOffline)
			drivers.GET("/:id/rides/pending", deps.DriverHandler.PendingRides)
			drivers.POST("/:id/rides/:rideId/accept", deps.DriverHandler.AcceptRide)
			drivers.POST("/:id/rides/:rideId/status", deps.DriverHandler.UpdateRideStatus)
		}
	}

	return router
}
