package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Alert types
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
)

// StockAlertNotifier sends stock alerts to one channel (log, pub/sub, stream)
type StockAlertNotifier interface {
	// Name identifies the channel in logs
	Name() string
	SendAlert(ctx context.Context, alert StockAlert) error
}

// StockAlert represents a low-stock signal
type StockAlert struct {
	EventID           string    `json:"event_id"`
	ItemID            string    `json:"item_id"`
	WarehouseID       string    `json:"warehouse_id"`
	SellableQuantity  string    `json:"sellable_quantity"`
	AvailableQuantity string    `json:"available_quantity"`
	ReservedQuantity  string    `json:"reserved_quantity"`
	Threshold         string    `json:"threshold"`
	AlertType         string    `json:"alert_type"`
	RaisedAt          time.Time `json:"raised_at"`
}

// LowStockHandler handles StockBelowThreshold events and fans the alert out
// to every configured notifier. Notifier failures are logged and never fail
// the stock operation that raised the event.
type LowStockHandler struct {
	logger    *zap.Logger
	notifiers []StockAlertNotifier
	cooldown  time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewLowStockHandler creates a new handler
func NewLowStockHandler(logger *zap.Logger) *LowStockHandler {
	return &LowStockHandler{
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
}

// WithNotifier adds a notification channel
func (h *LowStockHandler) WithNotifier(notifier StockAlertNotifier) *LowStockHandler {
	h.notifiers = append(h.notifiers, notifier)
	return h
}

// WithCooldown suppresses repeated alerts for the same stock row within d
func (h *LowStockHandler) WithCooldown(d time.Duration) *LowStockHandler {
	h.cooldown = d
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockHandler) EventTypes() []string {
	return []string{inventory.EventTypeStockBelowThreshold}
}

// Handle processes a StockBelowThresholdEvent
func (h *LowStockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*inventory.StockBelowThresholdEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", inventory.EventTypeStockBelowThreshold),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			inventory.EventTypeStockBelowThreshold, event.EventType())
	}

	alertType := AlertTypeLowStock
	if !e.Sellable.IsPositive() {
		alertType = AlertTypeOutOfStock
	}
	alert := StockAlert{
		EventID:           e.EventID().String(),
		ItemID:            e.ItemID.String(),
		WarehouseID:       e.WarehouseID.String(),
		SellableQuantity:  e.Sellable.String(),
		AvailableQuantity: e.Available.String(),
		ReservedQuantity:  e.Reserved.String(),
		Threshold:         e.Threshold.String(),
		AlertType:         alertType,
		RaisedAt:          e.OccurredAt(),
	}

	h.logger.Warn("stock below threshold detected",
		zap.String("item_id", alert.ItemID),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.String("sellable_quantity", alert.SellableQuantity),
		zap.String("threshold", alert.Threshold),
		zap.String("alert_type", alertType),
	)

	if !h.shouldSend(alert) {
		h.logger.Debug("stock alert suppressed by cooldown", zap.String("item_id", alert.ItemID))
		return nil
	}

	var errs error
	for _, n := range h.notifiers {
		if err := n.SendAlert(ctx, alert); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		h.logger.Debug("stock alert notification sent",
			zap.String("channel", n.Name()),
			zap.String("item_id", alert.ItemID),
		)
	}
	if errs != nil {
		h.logger.Error("failed to send stock alert notification",
			zap.String("item_id", alert.ItemID),
			zap.Error(errs),
		)
	}
	return nil
}

func (h *LowStockHandler) shouldSend(alert StockAlert) bool {
	if h.cooldown <= 0 {
		return true
	}
	key := alert.ItemID + ":" + alert.WarehouseID + ":" + alert.AlertType
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.lastSent[key]; ok && alert.RaisedAt.Sub(last) < h.cooldown {
		return false
	}
	h.lastSent[key] = alert.RaisedAt
	return true
}

// Ensure LowStockHandler implements shared.EventHandler
var _ shared.EventHandler = (*LowStockHandler)(nil)

// LoggingStockAlertNotifier is a simple notifier that logs alerts.
// This is useful for development and testing.
type LoggingStockAlertNotifier struct {
	logger *zap.Logger
}

// NewLoggingStockAlertNotifier creates a new logging notifier
func NewLoggingStockAlertNotifier(logger *zap.Logger) *LoggingStockAlertNotifier {
	return &LoggingStockAlertNotifier{
		logger: logger,
	}
}

// Name returns the channel name
func (n *LoggingStockAlertNotifier) Name() string {
	return "log"
}

// SendAlert logs the stock alert
func (n *LoggingStockAlertNotifier) SendAlert(_ context.Context, alert StockAlert) error {
	n.logger.Warn("STOCK ALERT",
		zap.String("type", alert.AlertType),
		zap.String("item_id", alert.ItemID),
		zap.String("warehouse_id", alert.WarehouseID),
		zap.String("sellable_qty", alert.SellableQuantity),
		zap.String("threshold", alert.Threshold),
	)
	return nil
}

// Ensure LoggingStockAlertNotifier implements StockAlertNotifier
var _ StockAlertNotifier = (*LoggingStockAlertNotifier)(nil)
