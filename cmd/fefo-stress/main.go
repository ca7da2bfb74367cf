// Command fefo-stress hammers the stock engine with concurrent reservation,
// fulfilment and release flows and then checks the stock invariants.
//
// Usage:
//
//	fefo-stress [-items 20] [-batches 5] [-pool 10] [-workers 16] [-ops 2000]
//	            [-db sqlite-dsn|postgres] [-locker memory|redis]
//
// It exits with status 1 when any invariant is violated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/infrastructure/config"
	"github.com/erp/stockengine/internal/infrastructure/lock"
	"github.com/erp/stockengine/internal/infrastructure/logger"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultDSN = "file:fefo_stress?mode=memory&cache=shared"

func main() {
	var (
		params   Params
		dsn      string
		backend  string
		logLevel string
	)
	flag.IntVar(&params.Items, "items", 20, "Number of items to seed")
	flag.IntVar(&params.Batches, "batches", 5, "Released batches per item")
	flag.IntVar(&params.Pool, "pool", 10, "Units received per batch")
	flag.IntVar(&params.Workers, "workers", 16, "Concurrent workers")
	flag.IntVar(&params.Ops, "ops", 2000, "Total reserve attempts")
	flag.Uint64Var(&params.Seed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.StringVar(&dsn, "db", defaultDSN, `SQLite DSN, or "postgres" to use the database from configuration`)
	flag.StringVar(&backend, "locker", lock.BackendMemory, "Key locker backend (memory or redis)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if params.Items < 1 || params.Batches < 1 || params.Pool < 1 || params.Workers < 1 || params.Ops < 0 {
		log.Fatal("items, batches, pool and workers must be positive")
	}

	os.Exit(run(context.Background(), params, dsn, backend, log))
}

func run(ctx context.Context, params Params, dsn, backend string, log *zap.Logger) int {
	cfg, err := loadConfig(dsn, backend)
	if err != nil {
		log.Error("Failed to load configuration", zap.Error(err))
		return 1
	}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, logger.NewGormLogger(log, gormlogger.Warn))
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer func() {
		_ = db.Close()
	}()
	if err := db.AutoMigrate(); err != nil {
		log.Error("Failed to migrate schema", zap.Error(err))
		return 1
	}

	var client redis.UniversalClient
	if cfg.Locker.Backend == lock.BackendRedis {
		rc, err := lock.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Error("Failed to connect to Redis", zap.Error(err))
			return 1
		}
		defer func() {
			_ = rc.Close()
		}()
		client = rc
	}
	locker, err := lock.NewKeyLocker(cfg.Locker, cfg.Stock, client, log)
	if err != nil {
		log.Error("Failed to create locker", zap.Error(err))
		return 1
	}

	repos := persistence.NewRepositories(db.DB)
	if err := ensureDefaultWarehouse(ctx, repos); err != nil {
		log.Error("Failed to prepare warehouse", zap.Error(err))
		return 1
	}

	svcCfg := appinv.DefaultConfig()
	svcCfg.DefaultRequiresQC = false
	svcCfg.Retry = appinv.RetryPolicy{Attempts: cfg.Stock.RetryAttempts, Backoff: cfg.Stock.RetryBackoff}
	svc := appinv.NewService(repos, persistence.NewGormTransactionScope(db.DB), locker, svcCfg, log.Named("stock").WithOptions(zap.IncreaseLevel(zap.WarnLevel)))

	h := NewHarness(svc, params, log)
	if err := h.Seed(ctx); err != nil {
		log.Error("Seed failed", zap.Error(err))
		return 1
	}
	sum, err := h.Run(ctx)
	if err != nil {
		log.Error("Run failed", zap.Error(err))
		return 1
	}
	sum.Violations, err = h.Check(ctx)
	if err != nil {
		log.Error("Invariant check could not read stock", zap.Error(err))
		return 1
	}

	log.Info("Stress run finished",
		zap.Int("workers", params.Workers),
		zap.Int("ops", params.Ops),
		zap.Uint64("seed", params.Seed),
		zap.Int64("reserved", sum.Reserved),
		zap.Int64("rejected", sum.Rejected),
		zap.Int64("busy", sum.Busy),
		zap.Int64("fulfilled", sum.Fulfilled),
		zap.Int64("released", sum.Released),
		zap.Int64("failed", sum.Failed),
		zap.Duration("elapsed", sum.Elapsed),
		zap.Int("violations", len(sum.Violations)),
	)
	for _, v := range sum.Violations {
		log.Error("Invariant violated", zap.String("detail", v))
	}
	if len(sum.Violations) > 0 {
		return 1
	}
	return 0
}

// loadConfig uses the full configuration for postgres and a self-contained
// sqlite setup otherwise
func loadConfig(dsn, backend string) (*config.Config, error) {
	var cfg *config.Config
	if dsn == persistence.DriverPostgres {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{
			Database: config.DatabaseConfig{Driver: persistence.DriverSQLite, DBName: dsn, MaxIdleConns: 1},
			Redis:    config.RedisConfig{Host: "localhost", Port: 6379},
			Stock: config.StockConfig{
				LockWaitTimeout: 5 * time.Second,
				LockTTL:         10 * time.Second,
				RetryAttempts:   5,
				RetryBackoff:    20 * time.Millisecond,
			},
			Locker: config.LockerConfig{KeyPrefix: "lock:", RetryInterval: 10 * time.Millisecond},
		}
	}
	cfg.Locker.Backend = backend
	return cfg, nil
}

func ensureDefaultWarehouse(ctx context.Context, repos appinv.Repositories) error {
	if _, err := repos.Warehouses.FindDefault(ctx); err == nil {
		return nil
	}
	wh, err := inventory.NewWarehouse("main", "Main")
	if err != nil {
		return err
	}
	wh.IsDefault = true
	return repos.Warehouses.Save(ctx, wh)
}
