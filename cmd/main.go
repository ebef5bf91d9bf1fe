package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shenikar/safesteps/internal/config"
	"github.com/shenikar/safesteps/internal/dispatch"
	"github.com/shenikar/safesteps/internal/fanout"
	"github.com/shenikar/safesteps/internal/gateway"
	"github.com/shenikar/safesteps/internal/geogrid"
	v1 "github.com/shenikar/safesteps/internal/handler/http/v1"
	"github.com/shenikar/safesteps/internal/location"
	"github.com/shenikar/safesteps/internal/metrics"
	"github.com/shenikar/safesteps/internal/repository"
	"github.com/shenikar/safesteps/internal/risk"
	"github.com/shenikar/safesteps/internal/service"
	"github.com/shenikar/safesteps/internal/webhook"
	firestoreclient "github.com/shenikar/safesteps/pkg/firestore"
	"github.com/shenikar/safesteps/pkg/logger"
	"github.com/shenikar/safesteps/pkg/postgres"
	redisclient "github.com/shenikar/safesteps/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/safesteps/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title SafeSteps API
// @version 1.0
// @description Crowd-sourced safety incidents, live risk surface and SOS alerts.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// openStore выбирает хранилище по STORE_BACKEND. closeFn освобождает соединения.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (repository.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if err := runMigrations(cfg, log); err != nil {
			return nil, nil, err
		}
		dbpool, err := postgres.NewPostgresDB(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		log.Info("Successfully connected to PostgreSQL")
		return repository.NewPostgres(dbpool), dbpool.Close, nil
	case config.BackendFirestore:
		client, err := firestoreclient.NewFirestoreClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Firestore: %w", err)
		}
		log.WithField("project_id", cfg.FirestoreProjectID).Info("Successfully connected to Firestore")
		return repository.NewFirestore(client), func() { _ = client.Close() }, nil
	default:
		log.Warn("Using in-memory store, data will not survive a restart")
		return repository.NewMemory(), func() {}, nil
	}
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Хранилище отчетов и тревог
	rawStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()
	store := repository.NewRetrying(rawStore, repository.RetryConfig{
		Attempts:  cfg.StoreRetryAttempts,
		BaseDelay: cfg.StoreRetryBaseDelay,
	}, log, m)

	// Redis необязателен: без него местоположения и ключи идемпотентности живут в памяти
	var (
		redisClient *redis.Client
		locations   service.LocationProvider
		idempotency service.IdempotencyStore
	)
	if cfg.RedisAddr != "" {
		redisClient, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Info("Successfully connected to Redis")

		locations = location.NewRedisProvider(redisClient, cfg.LocationFixTTL)
		idempotency = repository.NewRedisIdempotency(redisClient)
	} else {
		log.Warn("REDIS_ADDR is empty, using in-memory location and idempotency stores")
		locations = location.NewMemoryProvider(cfg.LocationFixTTL)
		idempotency = repository.NewMemoryIdempotency()
	}

	// Сетка и агрегатор риска
	grid, err := geogrid.New(cfg.GridCellMeters, cfg.GridMaxRegionCells)
	if err != nil {
		log.Fatalf("Invalid grid configuration: %v", err)
	}
	aggregator := risk.New(risk.Config{
		HalfLife:       cfg.RiskHalfLife,
		ColdFloor:      cfg.RiskColdFloor,
		TickInterval:   cfg.RiskTickInterval,
		DeltaThreshold: cfg.RiskDeltaThreshold,
		Retention:      cfg.RiskRetention,
	}, grid, log, risk.WithMetrics(m))

	// Хаб подписок читает агрегатор и получает от него дельты
	hub := fanout.NewHub(fanout.Config{
		LogSize: cfg.DeltaLogSize,
		Buffer:  cfg.SubscriptionBuffer,
		LogTTL:  cfg.DeltaLogTTL,
	}, aggregator, log, m)
	aggregator.SetSink(hub)

	// Рассылка SOS
	var smsGateway dispatch.Gateway
	if cfg.SMSGatewayURL != "" {
		smsGateway = gateway.NewSMSGateway(gateway.Config{
			URL:      cfg.SMSGatewayURL,
			Token:    cfg.SMSGatewayToken,
			SenderID: cfg.SMSSenderID,
		}, &http.Client{Timeout: cfg.SOSAttemptTimeout}, log)
	} else {
		log.Warn("SMS_GATEWAY_URL is empty, SOS messages will only be logged")
		smsGateway = gateway.NewLogGateway(log)
	}

	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(m)}
	if redisClient != nil {
		// Инициализация издателя вебхуков
		dispatchOpts = append(dispatchOpts, dispatch.WithNotifier(webhook.NewRedisWebhookPublisher(redisClient)))

		// Инициализация и запуск воркера вебхуков
		webhookWorker := webhook.NewWebhookWorker(redisClient, log, cfg)
		webhookWorker.Start(ctx)
	}
	dispatcher := dispatch.New(dispatch.Config{
		MaxConcurrentSends: cfg.SOSMaxConcurrentSends,
		AttemptTimeout:     cfg.SOSAttemptTimeout,
		RetryDelays:        cfg.SOSRetryDelays,
		DispatchDeadline:   cfg.SOSDispatchDeadline,
	}, store, store, smsGateway, log, dispatchOpts...)

	// Инициализация сервисов
	reportService := service.NewReportService(store, aggregator, grid, log, m)
	surfaceService := service.NewSurfaceService(aggregator, hub, grid, log)
	sosService := service.NewSOSService(dispatcher, store, locations, idempotency, service.SOSConfig{
		IdempotencyTTL:     cfg.SOSIdempotencyTTL,
		LocationRetryDelay: 500 * time.Millisecond,
	}, log)

	// Прогрев поверхности риска из хранилища
	loaded, err := reportService.Warmup(ctx, cfg.RiskWarmupWindow)
	if err != nil {
		log.Fatalf("Failed to warm up risk surface: %v", err)
	}
	log.WithField("reports", loaded).Info("Risk surface warmed up")

	go aggregator.Run(ctx)
	go hub.Run(ctx)
	go reportService.RunChangeFeed(ctx)

	// Тревоги, прерванные прошлым остановом, дорассылаются в фоне
	if err := dispatcher.Recover(ctx); err != nil {
		log.WithError(err).Error("Failed to recover open SOS alerts")
	}

	// Инициализация хэндлеров
	handler := v1.NewHandler(reportService, surfaceService, sosService, grid, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.SOSDispatchDeadline+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	// Незавершенные рассылки SOS доводятся до конца до закрытия хранилища
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.WithError(err).Warn("SOS dispatches did not finish before shutdown")
	}
	cancel()

	log.Info("Server gracefully stopped")
}
