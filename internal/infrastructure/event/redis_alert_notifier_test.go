package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishRecorder struct {
	redis.Cmdable
	channel string
	message interface{}
	err     error
}

func (p *publishRecorder) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message = message
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisAlertNotifier_SendAlert(t *testing.T) {
	rec := &publishRecorder{}
	notifier := NewRedisAlertNotifier(rec, "")
	assert.Equal(t, "redis:stock:alerts", notifier.Name())

	alert := appinv.StockAlert{ItemID: "item-1", SellableQuantity: "2", Threshold: "5", AlertType: appinv.AlertTypeLowStock, RaisedAt: time.Now()}
	require.NoError(t, notifier.SendAlert(context.Background(), alert))

	assert.Equal(t, DefaultAlertChannel, rec.channel)
	payload, ok := rec.message.([]byte)
	require.True(t, ok)
	var got appinv.StockAlert
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "item-1", got.ItemID)
	assert.Equal(t, appinv.AlertTypeLowStock, got.AlertType)
}

func TestRedisAlertNotifier_PublishError(t *testing.T) {
	rec := &publishRecorder{err: errors.New("connection refused")}
	notifier := NewRedisAlertNotifier(rec, "alerts:eu")

	err := notifier.SendAlert(context.Background(), appinv.StockAlert{ItemID: "item-1"})
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, "alerts:eu", rec.channel)
}
