package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/transfer-market/internal/api/handler"
	"github.com/cuongbtq/transfer-market/internal/api/router"
	apistorage "github.com/cuongbtq/transfer-market/internal/api/storage"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/config"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/cuongbtq/transfer-market/internal/memstore"
	"github.com/cuongbtq/transfer-market/internal/metrics"
	"github.com/cuongbtq/transfer-market/internal/migrations"
	"github.com/cuongbtq/transfer-market/internal/realtime"
	"github.com/cuongbtq/transfer-market/internal/settings"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/cuongbtq/transfer-market/shared/logger"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
	"github.com/cuongbtq/transfer-market/shared/rabbitmq"
	"github.com/cuongbtq/transfer-market/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// store is what both the postgres storage and the in-memory store provide
type store interface {
	marketplace.Store
	topup.Store
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("database_driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dbClient     *postgresql.Client
		rabbitClient *rabbitmq.Client
		redisClient  *redis.Client
	)

	// Cleanup function to close all resources
	defer func() {
		if redisClient != nil {
			redisClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
		if dbClient != nil {
			dbClient.Close()
		}
	}()

	var st store
	switch cfg.Database.Driver {
	case config.DriverMemory:
		mem := memstore.New()
		if err := mem.SaveSettings(ctx, defaultSettings()); err != nil {
			return fmt.Errorf("failed to seed settings: %w", err)
		}
		st = mem
		appLogger.Warn("Using in-memory storage, data is lost on restart")
	default:
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		appLogger.Info("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := migrations.Up(ctx, dbClient.GetDB().DB); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			appLogger.Info("Database migrations applied")
		}
		st = apistorage.NewStorage(dbClient)
	}

	hub := realtime.NewHub(appLogger.Logger, cfg.Server.AllowedOrigins)
	defer hub.Close()

	publishers := []events.Publisher{hub}
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, false, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		publishers = append(publishers, events.NewAMQPPublisher(rabbitClient))
		appLogger.Info("RabbitMQ connection established")
	}
	publisher := events.NewFanout(appLogger.Logger, publishers...)

	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, &redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		appLogger.Info("Redis connection established")
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	marketMetrics := metrics.New(registry)

	deps := &handler.Dependencies{
		Logger: appLogger.Logger,
		Engine: marketplace.NewEngine(&marketplace.Config{
			Store:     st,
			Publisher: publisher,
			Metrics:   marketMetrics,
			Logger:    appLogger.Logger,
		}),
		Settings:       settings.NewService(st, appLogger.Logger),
		Topups:         topup.NewService(st, publisher, appLogger.Logger),
		Verifier:       verifier,
		Metrics:        marketMetrics,
		DBClient:       dbClient,
		Redis:          redisClient,
		Hub:            hub,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ServiceName:    cfg.App.Name,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimit = handler.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			Done:              ctx.Done(),
		}
	}

	r, err := initRouter(cfg.App.Environment, deps)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// websocket connections are hijacked and not tracked by Shutdown
	hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

func defaultSettings() *settings.Settings {
	return &settings.Settings{
		Enabled:              true,
		CommissionPercentage: decimal.NewFromInt(10),
		MinimumBalance:       decimal.Zero,
		CancellationHours:    24,
		UpdatedAt:            time.Now().UTC(),
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      cfg.App.Name,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ connects to the job events exchange. The API only publishes,
// so the worker queue is left to the worker service.
func initRabbitMQ(cfg *config.RabbitMQConfig, withQueue bool, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		ExchangeDurable:   cfg.Exchange.Durable,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}
	if withQueue {
		rabbitConfig.QueueName = cfg.Queue.Name
		rabbitConfig.QueueDurable = cfg.Queue.Durable
		rabbitConfig.BindingKeys = cfg.Queue.BindingKeys
		rabbitConfig.PrefetchCount = cfg.Consumer.PrefetchCount
	}
	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) (*gin.Engine, error) {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	return router.SetupRouter(deps)
}
