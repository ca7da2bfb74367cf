package models

import (
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockItemModel is the persistence model for the StockItem aggregate root.
type StockItemModel struct {
	VersionedModel
	ItemID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_item_warehouse,priority:1"`
	WarehouseID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_item_warehouse,priority:2"`
	AvailableQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReservedQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	QCHoldQuantity    decimal.Decimal `gorm:"column:qc_hold_quantity;type:decimal(18,4);not null;default:0"`
	LowStockThreshold decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AvgCost           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (StockItemModel) TableName() string {
	return "stock_items"
}

// ToDomain converts the persistence model to a domain StockItem aggregate.
func (m *StockItemModel) ToDomain() (*inventory.StockItem, error) {
	return inventory.RestoreStockItem(inventory.StockItemSnapshot{
		ID:                m.ID,
		ItemID:            m.ItemID,
		WarehouseID:       m.WarehouseID,
		AvailableQuantity: m.AvailableQuantity,
		ReservedQuantity:  m.ReservedQuantity,
		QCHoldQuantity:    m.QCHoldQuantity,
		LowStockThreshold: m.LowStockThreshold,
		AvgCost:           m.AvgCost,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	})
}

// StockItemModelFromDomain creates a persistence model from a domain StockItem.
func StockItemModelFromDomain(item *inventory.StockItem) *StockItemModel {
	s := item.Snapshot()
	m := &StockItemModel{
		ItemID:            s.ItemID,
		WarehouseID:       s.WarehouseID,
		AvailableQuantity: s.AvailableQuantity,
		ReservedQuantity:  s.ReservedQuantity,
		QCHoldQuantity:    s.QCHoldQuantity,
		LowStockThreshold: s.LowStockThreshold,
		AvgCost:           s.AvgCost,
	}
	m.ID = s.ID
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
	m.Version = s.Version
	return m
}

// UpdateColumns returns the mutable columns written by an optimistic update
func (m *StockItemModel) UpdateColumns() map[string]any {
	return map[string]any{
		"available_quantity":  m.AvailableQuantity,
		"reserved_quantity":   m.ReservedQuantity,
		"qc_hold_quantity":    m.QCHoldQuantity,
		"low_stock_threshold": m.LowStockThreshold,
		"avg_cost":            m.AvgCost,
		"version":             m.Version + 1,
		"updated_at":          m.UpdatedAt,
	}
}

// BatchModel is the persistence model for the Batch ledger entry.
// RemainingQuantity is derived from the counters and stored for querying.
type BatchModel struct {
	VersionedModel
	ItemID              uuid.UUID             `gorm:"type:uuid;not null;index:idx_stock_batch_item_warehouse,priority:1"`
	WarehouseID         uuid.UUID             `gorm:"type:uuid;not null;index:idx_stock_batch_item_warehouse,priority:2"`
	BatchNumber         string                `gorm:"type:varchar(64);not null;index"`
	ReceivedQuantity    decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	ConsumedQuantity    decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	TransferredQuantity decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	WrittenOffQuantity  decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingQuantity   decimal.Decimal       `gorm:"type:decimal(18,4);not null;index"`
	UnitCost            decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	ExpiryDate          *time.Time            `gorm:"type:date;index"`
	QCStatus            inventory.QCStatus    `gorm:"column:qc_status;type:varchar(20);not null"`
	LastQCResult        inventory.QCResult    `gorm:"column:last_qc_result;type:varchar(10)"`
	LastQCAt            *time.Time            `gorm:"column:last_qc_at"`
	LastQCNotes         string                `gorm:"column:last_qc_notes;type:text"`
	Source              inventory.BatchSource `gorm:"type:varchar(20);not null"`
	ReceivedAt          time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "stock_batches"
}

// ToDomain converts the persistence model to a domain Batch.
func (m *BatchModel) ToDomain() (*inventory.Batch, error) {
	return inventory.RestoreBatch(inventory.BatchSnapshot{
		ID:                  m.ID,
		ItemID:              m.ItemID,
		WarehouseID:         m.WarehouseID,
		BatchNumber:         m.BatchNumber,
		ReceivedQuantity:    m.ReceivedQuantity,
		ConsumedQuantity:    m.ConsumedQuantity,
		TransferredQuantity: m.TransferredQuantity,
		WrittenOffQuantity:  m.WrittenOffQuantity,
		UnitCost:            m.UnitCost,
		ExpiryDate:          m.ExpiryDate,
		QCStatus:            m.QCStatus,
		LastQCResult:        m.LastQCResult,
		LastQCAt:            m.LastQCAt,
		LastQCNotes:         m.LastQCNotes,
		Source:              m.Source,
		ReceivedAt:          m.ReceivedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		Version:             m.Version,
	})
}

// BatchModelFromDomain creates a persistence model from a domain Batch.
func BatchModelFromDomain(b *inventory.Batch) *BatchModel {
	s := b.Snapshot()
	m := &BatchModel{
		ItemID:              s.ItemID,
		WarehouseID:         s.WarehouseID,
		BatchNumber:         s.BatchNumber,
		ReceivedQuantity:    s.ReceivedQuantity,
		ConsumedQuantity:    s.ConsumedQuantity,
		TransferredQuantity: s.TransferredQuantity,
		WrittenOffQuantity:  s.WrittenOffQuantity,
		RemainingQuantity:   b.Remaining(),
		UnitCost:            s.UnitCost,
		ExpiryDate:          s.ExpiryDate,
		QCStatus:            s.QCStatus,
		LastQCResult:        s.LastQCResult,
		LastQCAt:            s.LastQCAt,
		LastQCNotes:         s.LastQCNotes,
		Source:              s.Source,
		ReceivedAt:          s.ReceivedAt,
	}
	m.ID = s.ID
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
	m.Version = s.Version
	return m
}

// UpdateColumns returns the mutable columns written by an optimistic update.
// Identity, cost and expiry never change after receipt.
func (m *BatchModel) UpdateColumns() map[string]any {
	return map[string]any{
		"consumed_quantity":    m.ConsumedQuantity,
		"transferred_quantity": m.TransferredQuantity,
		"written_off_quantity": m.WrittenOffQuantity,
		"remaining_quantity":   m.RemainingQuantity,
		"qc_status":            m.QCStatus,
		"last_qc_result":       m.LastQCResult,
		"last_qc_at":           m.LastQCAt,
		"last_qc_notes":        m.LastQCNotes,
		"version":              m.Version + 1,
		"updated_at":           m.UpdatedAt,
	}
}

// ReservationModel is the persistence model for a per-order reservation row.
type ReservationModel struct {
	BaseModel
	OrderID     string                      `gorm:"type:varchar(100);not null;index:idx_stock_reservation_order"`
	ItemID      uuid.UUID                   `gorm:"type:uuid;not null;index"`
	WarehouseID uuid.UUID                   `gorm:"type:uuid;not null"`
	Quantity    decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	Outstanding decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	Status      inventory.ReservationStatus `gorm:"type:varchar(20);not null;index"`
	ExpiresAt   *time.Time                  `gorm:"index"`
	ClosedAt    *time.Time
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "stock_reservations"
}

// ToDomain converts the persistence model to a domain Reservation.
func (m *ReservationModel) ToDomain() *inventory.Reservation {
	return &inventory.Reservation{
		BaseEntity:  m.BaseModel.ToDomain(),
		OrderID:     m.OrderID,
		ItemID:      m.ItemID,
		WarehouseID: m.WarehouseID,
		Quantity:    m.Quantity,
		Outstanding: m.Outstanding,
		Status:      m.Status,
		ExpiresAt:   m.ExpiresAt,
		ClosedAt:    m.ClosedAt,
	}
}

// ReservationModelFromDomain creates a persistence model from a domain Reservation.
func ReservationModelFromDomain(r *inventory.Reservation) *ReservationModel {
	m := &ReservationModel{
		OrderID:     r.OrderID,
		ItemID:      r.ItemID,
		WarehouseID: r.WarehouseID,
		Quantity:    r.Quantity,
		Outstanding: r.Outstanding,
		Status:      r.Status,
		ExpiresAt:   utcPtr(r.ExpiresAt),
		ClosedAt:    utcPtr(r.ClosedAt),
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}

// StockHistoryModel is an append-only audit row.
type StockHistoryModel struct {
	ID            uuid.UUID            `gorm:"type:uuid;primaryKey"`
	ItemID        uuid.UUID            `gorm:"type:uuid;not null;index:idx_stock_history_item_created,priority:1"`
	WarehouseID   uuid.UUID            `gorm:"type:uuid;not null"`
	BatchID       *uuid.UUID           `gorm:"type:uuid"`
	ChangeType    inventory.ChangeType `gorm:"type:varchar(20);not null"`
	Quantity      decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	BalanceBefore decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	BalanceAfter  decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Unit          string               `gorm:"type:varchar(20)"`
	Reason        string               `gorm:"type:text"`
	OrderID       string               `gorm:"type:varchar(100);index"`
	ChangedBy     string               `gorm:"type:varchar(100)"`
	CreatedAt     time.Time            `gorm:"not null;index:idx_stock_history_item_created,priority:2"`
}

// TableName returns the table name for GORM
func (StockHistoryModel) TableName() string {
	return "stock_history"
}

// ToDomain converts the persistence model to a domain history entry.
func (m *StockHistoryModel) ToDomain() inventory.StockHistoryEntry {
	return inventory.StockHistoryEntry{
		ID:            m.ID,
		ItemID:        m.ItemID,
		WarehouseID:   m.WarehouseID,
		BatchID:       m.BatchID,
		ChangeType:    m.ChangeType,
		Quantity:      m.Quantity,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Unit:          m.Unit,
		Reason:        m.Reason,
		OrderID:       m.OrderID,
		ChangedBy:     m.ChangedBy,
		CreatedAt:     m.CreatedAt,
	}
}

// StockHistoryModelFromDomain creates a persistence model from a history entry.
func StockHistoryModelFromDomain(e *inventory.StockHistoryEntry) *StockHistoryModel {
	return &StockHistoryModel{
		ID:            e.ID,
		ItemID:        e.ItemID,
		WarehouseID:   e.WarehouseID,
		BatchID:       e.BatchID,
		ChangeType:    e.ChangeType,
		Quantity:      e.Quantity,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Unit:          e.Unit,
		Reason:        e.Reason,
		OrderID:       e.OrderID,
		ChangedBy:     e.ChangedBy,
		CreatedAt:     e.CreatedAt.UTC(),
	}
}

// WastageModel is an append-only wastage record.
type WastageModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ItemID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_wastage_item_recorded,priority:1"`
	WarehouseID uuid.UUID       `gorm:"type:uuid;not null"`
	BatchID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Unit        string          `gorm:"type:varchar(20);not null"`
	Reason      string          `gorm:"type:text;not null"`
	ReportedBy  string          `gorm:"type:varchar(100)"`
	RecordedAt  time.Time       `gorm:"not null;index:idx_stock_wastage_item_recorded,priority:2"`
}

// TableName returns the table name for GORM
func (WastageModel) TableName() string {
	return "stock_wastage"
}

// ToDomain converts the persistence model to a domain WastageEvent.
func (m *WastageModel) ToDomain() (inventory.WastageEvent, error) {
	qty, err := valueobject.NewQuantity(m.Quantity, m.Unit)
	if err != nil {
		return inventory.WastageEvent{}, err
	}
	return inventory.WastageEvent{
		ID:          m.ID,
		ItemID:      m.ItemID,
		WarehouseID: m.WarehouseID,
		BatchID:     m.BatchID,
		Quantity:    qty,
		Reason:      m.Reason,
		ReportedBy:  m.ReportedBy,
		RecordedAt:  m.RecordedAt,
	}, nil
}

// WastageModelFromDomain creates a persistence model from a domain WastageEvent.
func WastageModelFromDomain(e *inventory.WastageEvent) *WastageModel {
	return &WastageModel{
		ID:          e.ID,
		ItemID:      e.ItemID,
		WarehouseID: e.WarehouseID,
		BatchID:     e.BatchID,
		Quantity:    e.Quantity.Amount(),
		Unit:        e.Quantity.Unit(),
		Reason:      e.Reason,
		ReportedBy:  e.ReportedBy,
		RecordedAt:  e.RecordedAt.UTC(),
	}
}

// utcPtr normalizes timestamps that are compared in SQL
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
