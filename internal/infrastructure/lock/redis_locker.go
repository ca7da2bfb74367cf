package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RedisLocker is a KeyLocker shared by every process connected to the same
// Redis. Locks carry a TTL so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client    *redislock.Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
	retry     time.Duration
	logger    *zap.Logger
}

// RedisLockerOption configures a RedisLocker
type RedisLockerOption func(*RedisLocker)

// WithKeyPrefix namespaces lock keys in Redis
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.keyPrefix = prefix
	}
}

// WithRetryInterval sets the pause between two obtain attempts
func WithRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker creates a RedisLocker over an existing client
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    redislock.New(client),
		keyPrefix: "lock:",
		ttl:       ttl,
		wait:      wait,
		retry:     25 * time.Millisecond,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire obtains every key in the given order, retrying each with linear
// backoff until the wait budget is spent
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (appinv.Unlock, error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	held := make([]*redislock.Lock, 0, len(keys))
	for _, key := range keys {
		lk, err := l.client.Obtain(ctx, l.keyPrefix+key, l.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(l.retry),
		})
		if err != nil {
			if rerr := l.releaseAll(held); rerr != nil {
				l.logger.Warn("failed to roll back partially obtained locks", zap.Error(rerr))
			}
			if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
				return nil, shared.ErrStockBusy
			}
			return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
		}
		held = append(held, lk)
	}

	return func() error {
		return l.releaseAll(held)
	}, nil
}

// releaseAll releases in reverse order. A lock that already expired is not
// an error for the caller; its TTL did the release.
func (l *RedisLocker) releaseAll(held []*redislock.Lock) error {
	var errs error
	for i := len(held) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := held[i].Release(ctx)
		cancel()
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("stock lock expired before release", zap.String("key", held[i].Key()))
			continue
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

var _ appinv.KeyLocker = (*RedisLocker)(nil)
