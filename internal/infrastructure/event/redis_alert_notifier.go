package event

import (
	"context"
	"encoding/json"
	"fmt"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/redis/go-redis/v9"
)

// DefaultAlertChannel is the pub/sub channel used when none is configured
const DefaultAlertChannel = "stock:alerts"

// RedisAlertNotifier publishes low-stock alerts as JSON on a Redis channel
type RedisAlertNotifier struct {
	client  redis.Cmdable
	channel string
}

// NewRedisAlertNotifier creates a notifier publishing on channel
func NewRedisAlertNotifier(client redis.Cmdable, channel string) *RedisAlertNotifier {
	if channel == "" {
		channel = DefaultAlertChannel
	}
	return &RedisAlertNotifier{client: client, channel: channel}
}

// Name identifies the channel in logs
func (n *RedisAlertNotifier) Name() string {
	return "redis:" + n.channel
}

// SendAlert publishes the alert
func (n *RedisAlertNotifier) SendAlert(ctx context.Context, alert appinv.StockAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal stock alert: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish stock alert: %w", err)
	}
	return nil
}

var _ appinv.StockAlertNotifier = (*RedisAlertNotifier)(nil)
