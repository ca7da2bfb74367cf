package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis locker test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() {
		_ = client.Close()
	})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	t.Run("contended key answers stock busy", func(t *testing.T) {
		first := NewRedisLocker(client, 5*time.Second, time.Second)
		second := NewRedisLocker(client, 5*time.Second, 100*time.Millisecond, WithRetryInterval(10*time.Millisecond))

		unlock, err := first.Acquire(ctx, "stock:a:w")
		require.NoError(t, err)

		_, err = second.Acquire(ctx, "stock:a:w")
		assert.ErrorIs(t, err, shared.ErrStockBusy)
		assert.True(t, shared.IsTransient(err))

		require.NoError(t, unlock())
		unlock, err = second.Acquire(ctx, "stock:a:w")
		require.NoError(t, err)
		require.NoError(t, unlock())
	})

	t.Run("partial acquire rolls back", func(t *testing.T) {
		l := NewRedisLocker(client, 5*time.Second, 100*time.Millisecond, WithKeyPrefix("t:"))

		held, err := l.Acquire(ctx, "stock:c:w")
		require.NoError(t, err)

		_, err = l.Acquire(ctx, "stock:b:w", "stock:c:w")
		require.ErrorIs(t, err, shared.ErrStockBusy)

		exists, err := client.Exists(ctx, "t:stock:b:w").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
		require.NoError(t, held())
	})

	t.Run("expired lock is released by its ttl", func(t *testing.T) {
		l := NewRedisLocker(client, 50*time.Millisecond, time.Second)

		unlock, err := l.Acquire(ctx, "stock:d:w")
		require.NoError(t, err)
		time.Sleep(120 * time.Millisecond)

		assert.NoError(t, unlock())
		again, err := l.Acquire(ctx, "stock:d:w")
		require.NoError(t, err)
		require.NoError(t, again())
	})
}
