package lock

import (
	"context"
	"fmt"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names accepted by locker.backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewKeyLocker builds the KeyLocker selected by cfg.Backend. A redis backend
// needs a connected client.
func NewKeyLocker(cfg config.LockerConfig, stock config.StockConfig, client redis.UniversalClient, logger *zap.Logger) (appinv.KeyLocker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", BackendMemory:
		logger.Info("using in-process stock locker",
			zap.Duration("wait", stock.LockWaitTimeout),
		)
		return NewMemoryLocker(stock.LockWaitTimeout), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis locker requires a redis client")
		}
		logger.Info("using redis stock locker",
			zap.Duration("wait", stock.LockWaitTimeout),
			zap.Duration("ttl", stock.LockTTL),
		)
		return NewRedisLocker(client, stock.LockTTL, stock.LockWaitTimeout,
			WithKeyPrefix(cfg.KeyPrefix),
			WithRetryInterval(cfg.RetryInterval),
			WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unsupported locker backend %q", cfg.Backend)
	}
}
