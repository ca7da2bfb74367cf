package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockItemRepository implements inventory.StockItemRepository using GORM
type GormStockItemRepository struct {
	db *gorm.DB
}

// NewGormStockItemRepository creates a new GormStockItemRepository
func NewGormStockItemRepository(db *gorm.DB) *GormStockItemRepository {
	return &GormStockItemRepository{db: db}
}

// FindByItemAndWarehouse finds the stock row of an item in a warehouse
func (r *GormStockItemRepository) FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) (*inventory.StockItem, error) {
	return r.findOne(r.db.WithContext(ctx), itemID, warehouseID)
}

// FindByItemAndWarehouseForUpdate finds the stock row and locks it until the
// surrounding transaction ends
func (r *GormStockItemRepository) FindByItemAndWarehouseForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*inventory.StockItem, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), itemID, warehouseID)
}

func (r *GormStockItemRepository) findOne(query *gorm.DB, itemID, warehouseID uuid.UUID) (*inventory.StockItem, error) {
	var model models.StockItemModel
	if err := query.
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load stock item: %w", err)
	}
	return model.ToDomain()
}

// FindByItem returns the stock rows of an item across every warehouse
func (r *GormStockItemRepository) FindByItem(ctx context.Context, itemID uuid.UUID) ([]*inventory.StockItem, error) {
	var rows []models.StockItemModel
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("warehouse_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stock items: %w", err)
	}
	return stockItemsToDomain(rows)
}

// FindAll returns every stock row
func (r *GormStockItemRepository) FindAll(ctx context.Context) ([]*inventory.StockItem, error) {
	var rows []models.StockItemModel
	if err := r.db.WithContext(ctx).Order("item_id ASC, warehouse_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stock items: %w", err)
	}
	return stockItemsToDomain(rows)
}

// ListItemIDs returns the distinct item IDs that have a stock row
func (r *GormStockItemRepository) ListItemIDs(ctx context.Context, warehouseID *uuid.UUID) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.StockItemModel{}).Distinct("item_id")
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}
	var ids []uuid.UUID
	if err := query.Order("item_id ASC").Pluck("item_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list stocked items: %w", err)
	}
	return ids, nil
}

// CountAtOrBelowThreshold counts rows whose sellable quantity has reached the
// low-stock threshold
func (r *GormStockItemRepository) CountAtOrBelowThreshold(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.StockItemModel{}).
		Where("available_quantity - reserved_quantity <= low_stock_threshold").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count low stock items: %w", err)
	}
	return count, nil
}

// Save writes the aggregate with an optimistic version check. A row that does
// not exist yet is inserted; a row whose version moved on yields
// shared.ErrConcurrencyConflict. On success the in-memory version advances.
func (r *GormStockItemRepository) Save(ctx context.Context, item *inventory.StockItem) error {
	model := models.StockItemModelFromDomain(item)
	result := r.db.WithContext(ctx).
		Model(&models.StockItemModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version).
		Updates(model.UpdateColumns())
	if result.Error != nil {
		return fmt.Errorf("failed to update stock item: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		item.IncrementVersion()
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.StockItemModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check stock item: %w", err)
	}
	if count > 0 {
		return shared.ErrConcurrencyConflict
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to create stock item: %w", err)
	}
	return nil
}

func stockItemsToDomain(rows []models.StockItemModel) ([]*inventory.StockItem, error) {
	items := make([]*inventory.StockItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Ensure GormStockItemRepository implements inventory.StockItemRepository
var _ inventory.StockItemRepository = (*GormStockItemRepository)(nil)
