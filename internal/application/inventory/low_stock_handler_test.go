package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureNotifier struct {
	mu     sync.Mutex
	name   string
	err    error
	alerts []appinv.StockAlert
}

func (n *captureNotifier) Name() string { return n.name }

func (n *captureNotifier) SendAlert(_ context.Context, alert appinv.StockAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type otherEvent struct {
	shared.BaseDomainEvent
}

func belowThreshold(t *testing.T, available, reserved, threshold int64) *inventory.StockBelowThresholdEvent {
	t.Helper()
	item, err := inventory.RestoreStockItem(inventory.StockItemSnapshot{
		ID:                uuid.New(),
		ItemID:            uuid.New(),
		WarehouseID:       uuid.New(),
		AvailableQuantity: dec(available),
		ReservedQuantity:  dec(reserved),
		LowStockThreshold: dec(threshold),
		Version:           1,
	})
	require.NoError(t, err)
	return inventory.NewStockBelowThresholdEvent(item)
}

func TestLowStockHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("fans out to every notifier", func(t *testing.T) {
		first, second := &captureNotifier{name: "first"}, &captureNotifier{name: "second"}
		h := appinv.NewLowStockHandler(zap.NewNop()).WithNotifier(first).WithNotifier(second)
		assert.Equal(t, []string{inventory.EventTypeStockBelowThreshold}, h.EventTypes())

		e := belowThreshold(t, 10, 7, 5)
		require.NoError(t, h.Handle(ctx, e))
		require.Equal(t, 1, first.count())
		require.Equal(t, 1, second.count())

		alert := first.alerts[0]
		assert.Equal(t, appinv.AlertTypeLowStock, alert.AlertType)
		assert.Equal(t, "3", alert.SellableQuantity)
		assert.Equal(t, "5", alert.Threshold)
		assert.Equal(t, e.ItemID.String(), alert.ItemID)
	})

	t.Run("no sellable stock is out of stock", func(t *testing.T) {
		n := &captureNotifier{name: "n"}
		h := appinv.NewLowStockHandler(zap.NewNop()).WithNotifier(n)
		require.NoError(t, h.Handle(ctx, belowThreshold(t, 4, 4, 5)))
		assert.Equal(t, appinv.AlertTypeOutOfStock, n.alerts[0].AlertType)
	})

	t.Run("notifier failures do not fail the handler", func(t *testing.T) {
		broken := &captureNotifier{name: "broken", err: errors.New("redis down")}
		ok := &captureNotifier{name: "ok"}
		h := appinv.NewLowStockHandler(zap.NewNop()).WithNotifier(broken).WithNotifier(ok)
		assert.NoError(t, h.Handle(ctx, belowThreshold(t, 2, 0, 5)))
		assert.Equal(t, 1, ok.count())
	})

	t.Run("cooldown suppresses repeats for the same row", func(t *testing.T) {
		n := &captureNotifier{name: "n"}
		h := appinv.NewLowStockHandler(zap.NewNop()).WithNotifier(n).WithCooldown(time.Hour)

		e := belowThreshold(t, 2, 0, 5)
		require.NoError(t, h.Handle(ctx, e))
		require.NoError(t, h.Handle(ctx, e))
		assert.Equal(t, 1, n.count())

		require.NoError(t, h.Handle(ctx, belowThreshold(t, 2, 0, 5)))
		assert.Equal(t, 2, n.count(), "a different stock row is not suppressed")
	})

	t.Run("rejects other event types", func(t *testing.T) {
		h := appinv.NewLowStockHandler(zap.NewNop())
		err := h.Handle(ctx, &otherEvent{BaseDomainEvent: shared.NewBaseDomainEvent("Other", "test", uuid.New())})
		assert.ErrorContains(t, err, "unexpected event type")
	})
}

func TestLoggingStockAlertNotifier(t *testing.T) {
	n := appinv.NewLoggingStockAlertNotifier(zap.NewNop())
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.SendAlert(context.Background(), appinv.StockAlert{ItemID: "x"}))
}
