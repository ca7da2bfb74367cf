package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChangeType classifies a stock history entry
type ChangeType string

const (
	ChangeTypeReceipt     ChangeType = "receipt"
	ChangeTypeReserve     ChangeType = "reserve"
	ChangeTypeRelease     ChangeType = "release"
	ChangeTypeExpire      ChangeType = "expire"
	ChangeTypeDeduct      ChangeType = "deduct"
	ChangeTypeAdjust      ChangeType = "adjust"
	ChangeTypeWastage     ChangeType = "wastage"
	ChangeTypeTransferOut ChangeType = "transfer_out"
	ChangeTypeTransferIn  ChangeType = "transfer_in"
	ChangeTypeQCInspect   ChangeType = "qc_inspect"
	ChangeTypeQCRelease   ChangeType = "qc_release"
	ChangeTypeReconcile   ChangeType = "reconcile"
)

// StockHistoryEntry is an immutable audit record. Quantity is the signed delta
// of the counter the change affects (reserved for reserve/release/expire,
// available otherwise); the balances are always available quantity.
type StockHistoryEntry struct {
	ID            uuid.UUID
	ItemID        uuid.UUID
	WarehouseID   uuid.UUID
	BatchID       *uuid.UUID
	ChangeType    ChangeType
	Quantity      decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Unit          string
	Reason        string
	OrderID       string
	ChangedBy     string
	CreatedAt     time.Time
}

// HistoryParams collects the variable parts of an entry
type HistoryParams struct {
	ChangeType    ChangeType
	Quantity      decimal.Decimal
	BalanceBefore decimal.Decimal
	BatchID       *uuid.UUID
	Unit          string
	Reason        string
	OrderID       string
	ChangedBy     string
}

// NewStockHistoryEntry records a change against the aggregate's current balance
func NewStockHistoryEntry(item *StockItem, p HistoryParams) *StockHistoryEntry {
	return &StockHistoryEntry{
		ID:            uuid.New(),
		ItemID:        item.ItemID,
		WarehouseID:   item.WarehouseID,
		BatchID:       p.BatchID,
		ChangeType:    p.ChangeType,
		Quantity:      p.Quantity,
		BalanceBefore: p.BalanceBefore,
		BalanceAfter:  item.Available(),
		Unit:          p.Unit,
		Reason:        p.Reason,
		OrderID:       p.OrderID,
		ChangedBy:     p.ChangedBy,
		CreatedAt:     time.Now(),
	}
}
