package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"carpool/internal/app"
	"carpool/internal/config"
	"carpool/internal/events"
	"carpool/internal/handler"
	"carpool/internal/logging"
	"carpool/internal/payments"
	"carpool/internal/realtime"
	internalRedis "carpool/internal/redis"
	"carpool/internal/repository/postgres"
	"carpool/internal/service"
)

// eventSink is an EventPublisher that must be closed on shutdown.
type eventSink interface {
	service.EventPublisher
	Close() error
}

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL", "migrated", cfg.Database.Migrate)

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	var sink eventSink = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		sink = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("publishing trip events", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("event publisher close failed", "error", err)
		}
	}()

	server := wireServer(db, redisClient, nrApp, sink, cfg, logger)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, sink eventSink, cfg *config.Config, logger *slog.Logger) *http.Server {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	txManager := postgres.NewTxManager(db)
	userRepo := postgres.NewUserRepository(db)
	carRepo := postgres.NewCarRepository(db)
	tripRepo := postgres.NewTripRepository(db)
	reservationRepo := postgres.NewReservationRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// The processor and webhook parser stay nil interfaces when Stripe is off.
	var processor service.PaymentProcessor
	var webhookParser handler.WebhookParser
	if cfg.Stripe.SecretKey != "" {
		stripeClient := payments.NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		processor = stripeClient
		webhookParser = stripeClient
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, payment intents disabled")
	}

	// Initialize services.
	hub := realtime.NewHub(logger)
	identityService := service.NewIdentityService(userRepo)
	notificationService := service.NewNotificationService(notificationRepo, hub, logger)
	paymentService := service.NewPaymentService(service.PaymentServiceDeps{
		Tx:        txManager,
		Payments:  paymentRepo,
		Identity:  identityService,
		Processor: processor,
		Notifier:  notificationService,
		Events:    sink,
		Logger:    logger,
	})
	tripService := service.NewTripService(service.TripServiceDeps{
		Tx:           txManager,
		Trips:        tripRepo,
		Reservations: reservationRepo,
		Cars:         carRepo,
		Identity:     identityService,
		Notifier:     notificationService,
		Payments:     paymentService,
		Locker:       lockStore,
		Cache:        cacheStore,
		Events:       sink,
		Logger:       logger,
		LockTTL:      cfg.Lock.TripLockTTL,
		Currency:     cfg.Stripe.Currency,
	})
	reservationService := service.NewReservationService(reservationRepo, tripRepo, paymentRepo)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:         handler.NewTripHandler(tripService),
		ReservationHandler:  handler.NewReservationHandler(reservationService),
		PaymentHandler:      handler.NewPaymentHandler(paymentService),
		NotificationHandler: handler.NewNotificationHandler(notificationService),
		WebhookHandler:      handler.NewWebhookHandler(webhookParser, paymentService, cacheStore, logger),
		WSHandler:           handler.NewWSHandler(hub, nil, logger),
		JWTSecret:           []byte(cfg.Auth.JWTSecret),
		AllowOrigins:        cfg.Server.AllowOrigins,
		Replays:             internalRedis.NewReplayStore(redisClient),
		NewRelicApp:         nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
