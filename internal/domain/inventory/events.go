package inventory

import (
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeStockItem = "StockItem"

// Event type constants
const (
	EventTypeBatchReceived       = "BatchReceived"
	EventTypeStockReserved       = "StockReserved"
	EventTypeStockReleased       = "StockReleased"
	EventTypeStockDeducted       = "StockDeducted"
	EventTypeStockAdjusted       = "StockAdjusted"
	EventTypeStockTransferred    = "StockTransferred"
	EventTypeWastageRecorded     = "WastageRecorded"
	EventTypeBatchQCChanged      = "BatchQCChanged"
	EventTypeStockBelowThreshold = "StockBelowThreshold"
)

// stockEvent carries the fields every stock event shares
type stockEvent struct {
	shared.BaseDomainEvent
	ItemID      uuid.UUID `json:"item_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
}

func newStockEvent(eventType string, item *StockItem) stockEvent {
	return stockEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeStockItem, item.ID),
		ItemID:          item.ItemID,
		WarehouseID:     item.WarehouseID,
	}
}

// BatchReceivedEvent is raised when a receipt books a new batch
type BatchReceivedEvent struct {
	stockEvent
	BatchID     uuid.UUID       `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	QCStatus    QCStatus        `json:"qc_status"`
}

// StockReservedEvent is raised when quantity moves into reserved
type StockReservedEvent struct {
	stockEvent
	OrderID  string          `json:"order_id,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Reserved decimal.Decimal `json:"reserved"`
}

// StockReleasedEvent is raised when a reservation is released
type StockReleasedEvent struct {
	stockEvent
	OrderID  string          `json:"order_id,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Reserved decimal.Decimal `json:"reserved"`
}

// DeductedBatch describes one FEFO allocation line
type DeductedBatch struct {
	BatchID  uuid.UUID       `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// StockDeductedEvent is raised on fulfilment
type StockDeductedEvent struct {
	stockEvent
	OrderID         string          `json:"order_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReservedPortion decimal.Decimal `json:"reserved_portion"`
	Batches         []DeductedBatch `json:"batches"`
}

// StockAdjustedEvent is raised by an administrative set-to-value
type StockAdjustedEvent struct {
	stockEvent
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
	Reason string          `json:"reason"`
}

// StockTransferredEvent is raised on the source side of a transfer
type StockTransferredEvent struct {
	stockEvent
	ToWarehouseID uuid.UUID       `json:"to_warehouse_id"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// WastageRecordedEvent is raised when stock is written off
type WastageRecordedEvent struct {
	stockEvent
	BatchID  uuid.UUID       `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Reason   string          `json:"reason"`
}

// BatchQCChangedEvent is raised on every QC transition
type BatchQCChangedEvent struct {
	stockEvent
	BatchID uuid.UUID `json:"batch_id"`
	From    QCStatus  `json:"from"`
	To      QCStatus  `json:"to"`
	Result  QCResult  `json:"result,omitempty"`
}

// StockBelowThresholdEvent is raised when sellable stock reaches the
// low-stock threshold
type StockBelowThresholdEvent struct {
	stockEvent
	Sellable  decimal.Decimal `json:"sellable"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Threshold decimal.Decimal `json:"threshold"`
}
