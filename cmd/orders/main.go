package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	app_orders "ordersaga/internal/app/orders"
	"ordersaga/internal/cache"
	"ordersaga/internal/config"
	http_orders "ordersaga/internal/handler/http/orders"
	rabbitmq_handler "ordersaga/internal/handler/rabbitmq"
	"ordersaga/internal/idempotency"
	"ordersaga/internal/infrastructure/database"
	"ordersaga/internal/infrastructure/rabbitmq"
	redis_infra "ordersaga/internal/infrastructure/redis"
	"ordersaga/internal/metrics"
	"ordersaga/internal/outbox"
	postgres_order_repo "ordersaga/internal/repository/order_repo/postgres"
	postgres_outbox_repo "ordersaga/internal/repository/outbox_repo/postgres"
)

func main() {
	cfg, err := config.LoadOrders()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("Order Service starting...")

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(cfg.DBConnectionString())
		if err == nil {
			break
		}
		appLogger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database.")

	if err := database.RunMigrations(cfg.MigrationsPath, cfg.DBMigrationURL()); err != nil {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed.")

	// Broker is required to run both workers; a half-initialized process
	// would silently drop events.
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitClient.Close()

	topologyCh, err := rabbitClient.Channel()
	if err != nil {
		appLogger.Fatal("Failed to open topology channel", zap.Error(err))
	}
	if err := rabbitmq.DeclareOrderServiceTopology(topologyCh); err != nil {
		appLogger.Fatal("Failed to declare broker topology", zap.Error(err))
	}
	topologyCh.Close()
	appLogger.Info("Broker topology declared.")

	publisherCh, err := rabbitClient.Channel()
	if err != nil {
		appLogger.Fatal("Failed to open publisher channel", zap.Error(err))
	}
	consumerCh, err := rabbitClient.Channel()
	if err != nil {
		appLogger.Fatal("Failed to open consumer channel", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := redis_infra.NewClient(ctx, cfg.RedisAddr, cfg.RedisDB, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, appLogger)
	dedupGate := idempotency.NewRedisGate(redisClient)
	attemptCounter := idempotency.NewCounter(redisClient)

	orderRepository := postgres_order_repo.NewOrderRepository(db, appLogger)
	outboxRepository := postgres_outbox_repo.NewOutboxRepository(db, appLogger)

	orderService := app_orders.NewOrderService(
		orderRepository,
		redisCache,
		cfg.IdempotencyTTL,
		cfg.OrderCacheTTL,
		appLogger,
	)

	publisher := rabbitmq.NewPublisher(publisherCh, rabbitmq.OrderExchange, appLogger)
	relay := outbox.NewRelay(
		outboxRepository,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		cfg.OutboxBatchSize,
		appLogger.With(zap.String("component", "OutboxRelay")),
	)
	go relay.Run(ctx)
	appLogger.Info("Transactional outbox relay started.")

	paymentEventsConsumer := rabbitmq.NewConsumer(
		consumerCh,
		rabbitmq.PaymentEventsQueue,
		attemptCounter,
		cfg.MaxDeliveryAttempts,
		cfg.DedupTTL,
		appLogger.With(zap.String("component", "PaymentEventsConsumer")),
	)
	paymentEventsHandler := rabbitmq_handler.PaymentEventsMessageHandler(orderService, dedupGate, cfg.DedupTTL, appLogger)
	go func() {
		if err := paymentEventsConsumer.Start(ctx, paymentEventsHandler); err != nil && ctx.Err() == nil {
			appLogger.Error("Payment events consumer stopped unexpectedly", zap.Error(err))
		}
	}()
	appLogger.Info("Payment events consumer started.")

	metrics.Register()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	http_orders.RegisterRoutes(r, orderService, appLogger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("Order Service started", zap.String("address", server.Addr))

	<-sigChan

	appLogger.Info("Shutting down Order Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}
	appLogger.Info("Order Service stopped.")
}
