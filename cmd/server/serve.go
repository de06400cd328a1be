package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"ridedispatch/internal/app"
	"ridedispatch/internal/config"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/handler"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/notify"
	internalRedis "ridedispatch/internal/redis"
	"ridedispatch/internal/repository/postgres"
	"ridedispatch/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, WebSocket hub and expiry sweeper",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log := logger.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// New Relic goes first so the database and Redis clients get instrumented.
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
			log.Warn("new relic disabled", "error", err.Error())
		} else {
			log.Info("new relic enabled", "app", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := app.NewDatabase(connectCtx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.DBName)

	redisClient, err := app.NewRedisClient(connectCtx, cfg.Redis, nrApp)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	log.Info("connected to redis", "addr", cfg.Redis.Addr)

	hub := notify.NewHub(log)
	publisher, closePublishers, err := buildPublisher(cfg.Notify, hub, log)
	if err != nil {
		return err
	}
	defer closePublishers()

	w := wire(cfg, db, redisClient, hub, publisher, nrApp, log)

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		w.sweeper.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", err)
	}
	stop()
	<-sweeperDone
	w.rides.Wait()

	log.Info("server exited")
	return nil
}

type wiring struct {
	server  *http.Server
	rides   *service.RideService
	sweeper *service.ExpirySweeper
}

func wire(
	cfg *config.Config,
	db *sql.DB,
	redisClient *redis.Client,
	hub *notify.Hub,
	publisher notify.Publisher,
	nrApp *newrelic.Application,
	log logger.Logger,
) wiring {
	var locations internalRedis.LocationStoreInterface
	if cfg.Dispatch.GeoBackend == "memory" {
		locations = geo.NewMemoryRegistry(cfg.Dispatch.DriverOnlineTTL)
	} else {
		locations = internalRedis.NewLocationStore(redisClient, cfg.Dispatch.DriverOnlineTTL)
	}
	lockStore := internalRedis.NewLockStore(redisClient)
	pendingIndex := internalRedis.NewPendingIndex(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	riderRepo := postgres.NewRiderRepository(db)
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	transactor := postgres.NewTransactor(db)

	notifications := service.NewNotificationService(publisher, log)
	dispatcher := service.NewDispatchEngine(locations, pendingIndex, cacheStore, driverRepo, notifications, cfg.Dispatch, log)
	rideService := service.NewRideService(rideRepo, riderRepo, driverRepo, transactor, pendingIndex, cacheStore, dispatcher, notifications, cfg.Dispatch, log)
	acceptance := service.NewAcceptanceCoordinator(rideRepo, driverRepo, transactor, lockStore, pendingIndex, cacheStore, notifications, cfg.Dispatch, log)
	driverService := service.NewDriverService(locations, cacheStore, driverRepo, rideRepo, log)
	sweeper := service.NewExpirySweeper(rideRepo, rideService, cfg.Dispatch.PendingRideTTL, cfg.Dispatch.SweepInterval, log)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:   handler.NewRideHandler(rideService),
		DriverHandler: handler.NewDriverHandler(driverService, rideService, acceptance, driverRepo),
		RiderHandler:  handler.NewRiderHandler(riderRepo),
		WSHandler:     handler.NewWSHandler(hub),
		HealthHandler: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"postgres": db.PingContext,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}),
		RedisClient: redisClient,
		NewRelicApp: nrApp,
		Logger:      log,
	})

	return wiring{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		rides:   rideService,
		sweeper: sweeper,
	}
}

// buildPublisher fans events out to every configured sink. The returned
// func closes the broker connections.
func buildPublisher(cfg config.NotifyConfig, hub *notify.Hub, log logger.Logger) (notify.Publisher, func(), error) {
	var (
		sinks   notify.Multi
		closers []func() error
	)

	if cfg.HasSink("ws") {
		sinks = append(sinks, hub)
	}
	if cfg.HasSink("log") {
		sinks = append(sinks, notify.NewLogPublisher(log))
	}
	if cfg.HasSink("amqp") {
		p, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to amqp: %w", err)
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
		log.Info("amqp sink enabled", "exchange", cfg.AMQPExchange)
	}
	if cfg.HasSink("kafka") {
		p := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
		log.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("closing notification sink", "error", err.Error())
			}
		}
	}
	return sinks, closeAll, nil
}
