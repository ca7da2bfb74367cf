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
)

// GormWarehouseRepository implements inventory.WarehouseRepository using GORM
type GormWarehouseRepository struct {
	db *gorm.DB
}

// NewGormWarehouseRepository creates a new GormWarehouseRepository
func NewGormWarehouseRepository(db *gorm.DB) *GormWarehouseRepository {
	return &GormWarehouseRepository{db: db}
}

// FindByID finds a warehouse by its ID
func (r *GormWarehouseRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Warehouse, error) {
	var model models.WarehouseModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load warehouse: %w", err)
	}
	return model.ToDomain(), nil
}

// FindDefault returns the active default warehouse
func (r *GormWarehouseRepository) FindDefault(ctx context.Context) (*inventory.Warehouse, error) {
	var model models.WarehouseModel
	if err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load default warehouse: %w", err)
	}
	return model.ToDomain(), nil
}

// Save inserts or updates a warehouse. Saving a default warehouse clears the
// flag on every other warehouse in the same transaction.
func (r *GormWarehouseRepository) Save(ctx context.Context, w *inventory.Warehouse) error {
	model := models.WarehouseModelFromDomain(w)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model.IsDefault {
			if err := tx.Model(&models.WarehouseModel{}).
				Where("id <> ? AND is_default = ?", model.ID, true).
				Update("is_default", false).Error; err != nil {
				return fmt.Errorf("failed to clear default warehouse: %w", err)
			}
		}
		if err := tx.Save(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.NewDomainError(shared.CodeInvalidInput, "Warehouse code already exists").
					WithDetail("code", model.Code)
			}
			return fmt.Errorf("failed to save warehouse: %w", err)
		}
		return nil
	})
}

// GormItemPolicyRepository implements inventory.ItemPolicyRepository using GORM
type GormItemPolicyRepository struct {
	db *gorm.DB
}

// NewGormItemPolicyRepository creates a new GormItemPolicyRepository
func NewGormItemPolicyRepository(db *gorm.DB) *GormItemPolicyRepository {
	return &GormItemPolicyRepository{db: db}
}

// FindByItemID returns the catalog policy of an item
func (r *GormItemPolicyRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) (*inventory.ItemPolicy, error) {
	var model models.ItemPolicyModel
	if err := r.db.WithContext(ctx).First(&model, "item_id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load item policy: %w", err)
	}
	return model.ToDomain(), nil
}

// Save upserts the policy of an item
func (r *GormItemPolicyRepository) Save(ctx context.Context, p *inventory.ItemPolicy) error {
	if err := r.db.WithContext(ctx).Save(models.ItemPolicyModelFromDomain(p)).Error; err != nil {
		return fmt.Errorf("failed to save item policy: %w", err)
	}
	return nil
}

var (
	_ inventory.WarehouseRepository  = (*GormWarehouseRepository)(nil)
	_ inventory.ItemPolicyRepository = (*GormItemPolicyRepository)(nil)
)
