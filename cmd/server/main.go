package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/infrastructure/auth"
	"github.com/erp/stockengine/internal/infrastructure/config"
	"github.com/erp/stockengine/internal/infrastructure/event"
	"github.com/erp/stockengine/internal/infrastructure/lock"
	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/erp/stockengine/internal/infrastructure/report"
	"github.com/erp/stockengine/internal/infrastructure/scheduler"
	"github.com/erp/stockengine/internal/infrastructure/storage"
	"github.com/erp/stockengine/internal/infrastructure/telemetry"
	"github.com/erp/stockengine/internal/interfaces/http/handler"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
	"github.com/erp/stockengine/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// OTLP logs need a logger of their own to report setup; the final logger
	// tees into the OTLP core once the provider exists
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTLP logs", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		log, err = logger.New(logCfg, logsProvider.Core(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting stock engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.App.Name,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		MutexProfiling:    cfg.Profiling.MutexProfiling,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down logs provider", zap.Error(err))
		}
	}()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	dbSystem := "postgresql"
	if cfg.Database.Driver == persistence.DriverSQLite {
		dbSystem = "sqlite"
	}
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	if cfg.Database.Driver == persistence.DriverSQLite {
		// SQLite has no migration history; the schema comes from the models
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	// Redis is optional and only dialed when a component needs it
	var redisClient *redis.Client
	if cfg.Locker.Backend == lock.BackendRedis || cfg.Alert.RedisEnabled {
		redisClient, err = lock.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	var lockClient redis.UniversalClient
	if redisClient != nil {
		lockClient = redisClient
	}
	locker, err := lock.NewKeyLocker(cfg.Locker, cfg.Stock, lockClient, log)
	if err != nil {
		log.Fatal("Failed to create stock locker", zap.Error(err))
	}

	// Stock service
	repos := persistence.NewRepositories(db.DB)
	stockService := appinv.NewService(repos, persistence.NewGormTransactionScope(db.DB), locker, serviceConfig(cfg.Stock), log)

	meter := meterProvider.Meter(telemetry.TracerName)
	stockMetrics, err := telemetry.NewStockMetrics(telemetry.StockMetricsConfig{
		Meter:    meter,
		Logger:   log,
		LowStock: repos.Stock,
	})
	if err != nil {
		log.Fatal("Failed to create stock metrics", zap.Error(err))
	}
	defer func() {
		_ = stockMetrics.Close()
	}()
	stockService.SetMetrics(stockMetrics)

	// Events: in-process handlers first, then the optional Kafka stream
	eventBus := event.NewInMemoryEventBus(log)
	lowStockHandler := appinv.NewLowStockHandler(log).
		WithNotifier(appinv.NewLoggingStockAlertNotifier(log)).
		WithCooldown(cfg.Alert.Cooldown)
	if cfg.Alert.RedisEnabled && redisClient != nil {
		lowStockHandler.WithNotifier(event.NewRedisAlertNotifier(redisClient, cfg.Alert.RedisChannel))
	}
	eventBus.Subscribe(lowStockHandler)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	var kafkaPublisher *event.KafkaPublisher
	if cfg.Kafka.Enabled {
		writer := event.NewKafkaWriter(event.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ClientID:     cfg.Kafka.ClientID,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		kafkaPublisher = event.NewKafkaPublisher(writer, event.NewEventSerializer(), log)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error("Error closing Kafka writer", zap.Error(err))
			}
		}()
		stockService.SetEventPublisher(event.NewFanOutPublisher(eventBus, kafkaPublisher))
		log.Info("Kafka stock events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	} else {
		stockService.SetEventPublisher(eventBus)
	}

	// Reports
	stockService.SetReportRenderer(report.NewExpiryWorkbook())
	if cfg.Storage.Enabled {
		s3Storage, err := storage.NewS3ObjectStorage(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create object storage", zap.Error(err))
		}
		if err := s3Storage.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare report bucket", zap.Error(err))
		}
		stockService.SetObjectStorage(s3Storage)
		log.Info("Report storage enabled", zap.String("bucket", s3Storage.Bucket()))
	} else {
		stockService.SetObjectStorage(storage.NewMemoryObjectStorage())
	}

	// Background jobs
	jobs := scheduler.NewScheduler(log)
	if cfg.Stock.ReservationTTL > 0 {
		if err := jobs.Register(scheduler.NewReservationExpiryJob(stockService, log), scheduler.JobConfig{
			Interval: cfg.Stock.ReservationSweepInterval,
		}); err != nil {
			log.Fatal("Failed to register reservation expiry job", zap.Error(err))
		}
	}
	if cfg.Stock.ReportExportInterval > 0 {
		if err := jobs.Register(scheduler.NewExpiryReportJob(stockService, log), scheduler.JobConfig{
			Interval: cfg.Stock.ReportExportInterval,
		}); err != nil {
			log.Fatal("Failed to register expiry report job", zap.Error(err))
		}
	}
	if err := jobs.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer func() {
		if err := jobs.Stop(context.Background()); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}()

	// HTTP
	var revocations auth.RevocationList = auth.NewMemoryRevocationList()
	if redisClient != nil {
		revocations = auth.NewRedisRevocationList(redisClient)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	tracingConfig.Enabled = tracerProvider.IsEnabled()
	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = profiler.IsEnabled()

	httpMeter := meter
	if !meterProvider.IsEnabled() {
		httpMeter = nil
	}

	engine, err := router.NewEngine(router.Dependencies{
		Logger:      log,
		HTTP:        cfg.HTTP,
		JWT:         auth.NewJWTService(cfg.JWT),
		Revocations: revocations,
		Meter:       httpMeter,
		Tracing:     tracingConfig,
		Profiling:   profilingConfig,
		Stock:       handler.NewStockHandler(stockService),
		Health:      handler.NewHealthHandler(db, version),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// serviceConfig maps the stock section of the configuration to the service
func serviceConfig(c config.StockConfig) appinv.Config {
	cfg := appinv.DefaultConfig()
	cfg.Retry = appinv.RetryPolicy{Attempts: c.RetryAttempts, Backoff: c.RetryBackoff}
	cfg.ExpirySoonWindowDays = c.ExpirySoonWindowDays
	cfg.ReservationTTL = c.ReservationTTL
	cfg.ExpirySweepLimit = c.ReservationSweepLimit
	cfg.DefaultRequiresQC = c.DefaultRequiresQC
	cfg.DefaultUnit = c.DefaultUnit
	cfg.ReportURLTTL = c.ReportURLTTL
	return cfg
}
