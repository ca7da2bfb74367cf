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

// fefoOrder sorts batches earliest expiry first with untracked expiry last,
// then by receipt. The allocator re-sorts in memory; this keeps row lock
// acquisition in a stable order.
const fefoOrder = "expiry_date IS NULL, expiry_date ASC, received_at ASC, created_at ASC, id ASC"

// GormBatchRepository implements inventory.BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// FindByID finds a batch by its ID
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.findOne(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a batch and locks its row
func (r *GormBatchRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormBatchRepository) findOne(query *gorm.DB, id uuid.UUID) (*inventory.Batch, error) {
	var model models.BatchModel
	if err := query.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}
	return model.ToDomain()
}

// ListByItem returns the batches of an item in FEFO order. A nil warehouse
// lists every warehouse.
func (r *GormBatchRepository) ListByItem(ctx context.Context, itemID uuid.UUID, warehouseID *uuid.UUID) ([]*inventory.Batch, error) {
	query := r.db.WithContext(ctx).Where("item_id = ?", itemID)
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}
	return r.list(query.Order(fefoOrder))
}

// ListByItemForUpdate locks and returns every batch of an item in a warehouse
func (r *GormBatchRepository) ListByItemForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*inventory.Batch, error) {
	return r.list(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		Order(fefoOrder))
}

// ListWithRemaining returns every batch that still holds stock
func (r *GormBatchRepository) ListWithRemaining(ctx context.Context, warehouseID *uuid.UUID) ([]*inventory.Batch, error) {
	query := r.db.WithContext(ctx).Where("remaining_quantity > 0")
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}
	return r.list(query.Order("item_id ASC, " + fefoOrder))
}

func (r *GormBatchRepository) list(query *gorm.DB) ([]*inventory.Batch, error) {
	var rows []models.BatchModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	batches := make([]*inventory.Batch, 0, len(rows))
	for i := range rows {
		b, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Create inserts a new batch
func (r *GormBatchRepository) Create(ctx context.Context, batch *inventory.Batch) error {
	if err := r.db.WithContext(ctx).Create(models.BatchModelFromDomain(batch)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// Save updates the batch counters and QC state with an optimistic version
// check. Unknown batches are inserted.
func (r *GormBatchRepository) Save(ctx context.Context, batch *inventory.Batch) error {
	model := models.BatchModelFromDomain(batch)
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version).
		Updates(model.UpdateColumns())
	if result.Error != nil {
		return fmt.Errorf("failed to update batch: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		batch.Version++
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.BatchModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check batch: %w", err)
	}
	if count > 0 {
		return shared.ErrConcurrencyConflict
	}
	return r.Create(ctx, batch)
}

// SaveAll saves each batch in order, stopping at the first failure
func (r *GormBatchRepository) SaveAll(ctx context.Context, batches []*inventory.Batch) error {
	for _, b := range batches {
		if err := r.Save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Ensure GormBatchRepository implements inventory.BatchRepository
var _ inventory.BatchRepository = (*GormBatchRepository)(nil)
