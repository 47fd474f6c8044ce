package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hemidirasim/sahibparfum-sub001/internal/clients"
	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/events"
	"github.com/hemidirasim/sahibparfum-sub001/internal/handlers"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/middleware"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
	"github.com/hemidirasim/sahibparfum-sub001/internal/server"
	"github.com/hemidirasim/sahibparfum-sub001/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLoggerV2("checkout-service").Fatal("Failed to load configuration", logging.Fields{"error": err.Error()})
	}

	logging.Configure(cfg.LogLevel, cfg.AppEnv != config.EnvProduction)
	logger := logging.NewLoggerV2("checkout-service")
	defer logger.Sync()

	logger.Info("Starting checkout-service", logging.Fields{
		"port":            cfg.Server.Port,
		"env":             cfg.AppEnv,
		"gateway_env":     cfg.Gateway.Environment,
		"state_backend":   cfg.Features.StateBackend,
		"gateway_enabled": cfg.Gateway.HasCredentials(),
	})

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
	}
	defer db.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatal("Failed to initialise catalog store", logging.Fields{"error": err.Error()})
	}

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var redisClient *redis.Client
	if cfg.Features.StateBackend == config.StateRedis || cfg.Features.EnableOrderCaching {
		redisClient = repository.NewRedisClient(cfg.Redis)
		defer redisClient.Close()
	}

	var (
		tokenStore  repository.TokenStore
		bucketStore repository.BucketStore
	)
	if cfg.Features.StateBackend == config.StateRedis {
		tokenStore = repository.NewRedisTokenStore(redisClient)
		bucketStore = repository.NewRedisBucketStore(redisClient)
	} else {
		tokenStore = repository.NewMemoryTokenStore()
		buckets := repository.NewMemoryBucketStore()
		go buckets.RunSweeper(bgCtx, cfg.RateLimit.SweepInterval)
		bucketStore = buckets
	}

	// Left as a nil interface when caching is off; services check for nil.
	var orderCache repository.OrderCache
	if cfg.Features.EnableOrderCaching {
		orderCache = repository.NewRedisOrderCache(redisClient, cfg.Redis.TTL)
	}

	var eventPublisher events.Publisher = events.NopPublisher{}
	if cfg.Features.EnableOrderEvents && len(cfg.Kafka.Brokers) > 0 {
		eventPublisher = events.NewKafkaPublisher(cfg.Kafka, logging.NewLoggerV2("events"))
	}
	defer eventPublisher.Close()

	orderRepo := repository.NewPostgresOrderRepository(db, logging.NewLoggerV2("order-repository"))
	catalogRepo := repository.NewGormCatalogRepository(gormDB, logging.NewLoggerV2("catalog-repository"))

	gateway := clients.NewGatewayClient(cfg.Gateway, m, logging.NewLoggerV2("gateway-client"))
	mailer := clients.NewSMTPMailer(cfg.SMTP, cfg.Server.StoreURL, logging.NewLoggerV2("mailer"))

	tokens := service.NewTokenManager(gateway, tokenStore, m)
	paymentService := service.NewPaymentService(gateway, tokens, orderRepo, orderCache, cfg.Gateway, m)
	reconciler := service.NewReconciler(gateway, tokens, orderRepo, orderCache, eventPublisher, cfg.Gateway, m)
	orderService := service.NewOrderService(orderRepo, orderCache, mailer, eventPublisher, cfg.Features, m)
	catalogService := service.NewCatalogService(catalogRepo)
	authService := service.NewAuthService(cfg.Auth)

	h := handlers.NewHandlers(paymentService, reconciler, orderService, catalogService, authService, cfg).
		WithGatherer(registry).
		WithReadinessCheck("database", db.PingContext)
	if redisClient != nil {
		h.WithReadinessCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	rateLimiter := middleware.NewRateLimiter(
		bucketStore,
		cfg.RateLimit.MaxRequests,
		cfg.RateLimit.Window,
		m,
		logging.NewLoggerV2("rate-limiter"),
	)

	srv := server.New(cfg, h, rateLimiter, authService, m)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", logging.Fields{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config, logger *logging.LoggerV2) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connected", logging.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	})

	return db, nil
}
