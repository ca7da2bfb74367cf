package inventory

import (
	"context"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
)

// StockItemRepository persists the stock aggregate
type StockItemRepository interface {
	// FindByItemAndWarehouse returns shared.ErrNotFound when no row exists
	FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockItem, error)
	// FindByItemAndWarehouseForUpdate locks the row for the current transaction (SELECT ... FOR UPDATE)
	FindByItemAndWarehouseForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockItem, error)
	FindByItem(ctx context.Context, itemID uuid.UUID) ([]*StockItem, error)
	FindAll(ctx context.Context) ([]*StockItem, error)
	// ListItemIDs returns the distinct items with a stock row; a nil warehouse covers every warehouse
	ListItemIDs(ctx context.Context, warehouseID *uuid.UUID) ([]uuid.UUID, error)
	// CountAtOrBelowThreshold counts rows whose sellable quantity is at or below the threshold
	CountAtOrBelowThreshold(ctx context.Context) (int64, error)
	// Save inserts or updates with an optimistic version check
	Save(ctx context.Context, item *StockItem) error
}

// BatchRepository persists the batch ledger. Batches are never deleted.
type BatchRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error)
	// ListByItem returns batches in FEFO order; a nil warehouse lists every warehouse
	ListByItem(ctx context.Context, itemID uuid.UUID, warehouseID *uuid.UUID) ([]*Batch, error)
	// ListByItemForUpdate locks every batch of the item/warehouse
	ListByItemForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*Batch, error)
	// ListWithRemaining returns batches that still hold stock
	ListWithRemaining(ctx context.Context, warehouseID *uuid.UUID) ([]*Batch, error)
	Create(ctx context.Context, batch *Batch) error
	Save(ctx context.Context, batch *Batch) error
	SaveAll(ctx context.Context, batches []*Batch) error
}

// ReservationRepository persists reservation audit rows
type ReservationRepository interface {
	FindActive(ctx context.Context, orderID string, itemID, warehouseID uuid.UUID) (*Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]*Reservation, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	Save(ctx context.Context, r *Reservation) error
}

// StockHistoryRepository is append-only
type StockHistoryRepository interface {
	Append(ctx context.Context, entries ...*StockHistoryEntry) error
	ListByItem(ctx context.Context, itemID uuid.UUID, filter shared.Filter) ([]StockHistoryEntry, int64, error)
}

// WastageRepository is append-only
type WastageRepository interface {
	Append(ctx context.Context, event *WastageEvent) error
	ListByItem(ctx context.Context, itemID uuid.UUID, filter shared.Filter) ([]WastageEvent, int64, error)
}

// WarehouseRepository resolves stock locations
type WarehouseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Warehouse, error)
	// FindDefault returns shared.ErrNotFound when no active default exists
	FindDefault(ctx context.Context) (*Warehouse, error)
	Save(ctx context.Context, w *Warehouse) error
}

// ItemPolicyRepository reads catalog-owned item metadata
type ItemPolicyRepository interface {
	// FindByItemID returns shared.ErrNotFound when the catalog has no policy
	FindByItemID(ctx context.Context, itemID uuid.UUID) (*ItemPolicy, error)
	Save(ctx context.Context, p *ItemPolicy) error
}
