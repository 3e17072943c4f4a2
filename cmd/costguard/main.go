package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"costguard/internal/adapters/clickhouse"
	"costguard/internal/adapters/config"
	"costguard/internal/adapters/errors/noop"
	"costguard/internal/adapters/errors/sentry"
	"costguard/internal/adapters/kafka"
	"costguard/internal/adapters/postgres"
	"costguard/internal/adapters/redis"
	"costguard/internal/adapters/telegram"
	"costguard/internal/api"
	"costguard/internal/api/health"
	"costguard/internal/bridge"
	"costguard/internal/consumers"
	"costguard/internal/events"
	"costguard/internal/metrics"
	"costguard/internal/notify"
	chrepo "costguard/internal/repository/clickhouse"
	pgrepo "costguard/internal/repository/postgres"
	"costguard/internal/services/baseline"
	"costguard/internal/services/lifecycle"
	"costguard/internal/services/scan"
	usagesvc "costguard/internal/services/usage"
	"costguard/internal/workers"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s v%s in %s mode", cfg.App.Name, version, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	db := initDatabases(cfg, log)
	defer db.Close(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	// Repositories
	usageRepo := chrepo.NewUsageRepository(db.ClickHouse.Conn())
	usageRepo.Start(ctx)
	anomalyRepo := pgrepo.NewAnomalyRepository(db.Postgres.DB())
	actionRepo := pgrepo.NewActionRepository(db.Postgres.DB())

	// Messaging
	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	publisher := events.NewPublisher(producer)
	dispatcher := notify.NewDispatcher(producer, cfg.Scan.NotifyTimeout, clock)

	// External workflow bridge
	bridgeClient := bridge.New(cfg.Bridge, clock)

	// Services
	usageService := usagesvc.NewService(usageRepo, db.Redis, clock)
	estimator := baseline.NewEstimator(usageRepo, clock, cfg.Scan.BaselineDays)

	lifecycleService := lifecycle.NewService(actionRepo, bridgeClient, publisher, dispatcher, clock, lifecycle.Config{
		AutoExecuteDelay: cfg.Scan.AutoExecuteDelay,
		ExecutorWorkers:  cfg.Workers.ExecutorWorkers,
		BridgeTimeout:    cfg.Bridge.Timeout,
	})
	lifecycleService.Start()
	defer lifecycleService.Stop()

	orchestrator := scan.NewOrchestrator(
		estimator, anomalyRepo, lifecycleService, publisher, dispatcher, db.Redis, clock, cfg.Scan.LockTTL,
	)

	// Notification delivery pipeline
	notificationConsumer := startNotificationConsumer(ctx, cfg, log)
	if notificationConsumer != nil {
		defer notificationConsumer.Close()
	}

	// Background workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewScanWorker(orchestrator, cfg.Workers.ScanInterval, cfg.Workers.ScanEnabled))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// HTTP API
	healthHandler := health.New(log, map[string]health.Checker{
		"postgres":   db.Postgres,
		"clickhouse": db.ClickHouse,
		"redis":      db.Redis,
	}, cfg.App.Name, version)

	apiHandler := api.NewHandler(usageService, lifecycleService, anomalyRepo, orchestrator, bridgeClient, clock)
	server := api.NewServer(api.ServerConfig{
		Port:        cfg.API.Port,
		ServiceName: cfg.App.Name,
		Version:     version,
		APIKey:      cfg.API.APIKey,
	}, apiHandler, healthHandler, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(cancel, errorTracker, log)

	// Drain in dependency order: API first, then workers, then buffers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown error: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Errorf("Scheduler stop error: %v", err)
	}
	if err := usageRepo.Stop(shutdownCtx); err != nil {
		log.Errorf("Usage buffer flush error: %v", err)
	}
	if err := producer.Close(); err != nil {
		log.Errorf("Kafka producer close error: %v", err)
	}

	log.Info("Shutdown complete")
}

// Databases bundles storage connections
type Databases struct {
	Postgres   *postgres.Client
	ClickHouse *clickhouse.Client
	Redis      *redis.Client
}

// Close releases all storage connections
func (d *Databases) Close(log *logger.Logger) {
	if err := d.Postgres.Close(); err != nil {
		log.Errorf("Postgres close error: %v", err)
	}
	if err := d.ClickHouse.Close(); err != nil {
		log.Errorf("ClickHouse close error: %v", err)
	}
	if err := d.Redis.Close(); err != nil {
		log.Errorf("Redis close error: %v", err)
	}
}

func initDatabases(cfg *config.Config, log *logger.Logger) *Databases {
	log.Info("Initializing databases...")

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	log.Info("Databases initialized")
	return &Databases{
		Postgres:   pgClient,
		ClickHouse: chClient,
		Redis:      redisClient,
	}
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// startNotificationConsumer wires the Telegram delivery pipeline.
// Without a bot token the service still runs; alerts stay in Kafka.
func startNotificationConsumer(ctx context.Context, cfg *config.Config, log *logger.Logger) *consumers.NotificationConsumer {
	notifier, err := telegram.NewNotifier(cfg.Telegram)
	if err != nil {
		log.Warnf("Telegram notifier disabled: %v", err)
		return nil
	}

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   kafka.TopicNotifications,
	})

	notificationConsumer := consumers.NewNotificationConsumer(consumer, notifier)
	go func() {
		if err := notificationConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("Notification consumer stopped: %v", err)
		}
	}()

	log.Info("Notification consumer started")
	return notificationConsumer
}

// waitForShutdown blocks until SIGINT or SIGTERM
func waitForShutdown(cancel context.CancelFunc, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	if errorTracker != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := errorTracker.Flush(flushCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}
}
