package persistence

import (
	"context"
	"fmt"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockHistoryRepository implements inventory.StockHistoryRepository using GORM.
// The table is append-only.
type GormStockHistoryRepository struct {
	db *gorm.DB
}

// NewGormStockHistoryRepository creates a new GormStockHistoryRepository
func NewGormStockHistoryRepository(db *gorm.DB) *GormStockHistoryRepository {
	return &GormStockHistoryRepository{db: db}
}

// Append inserts history entries
func (r *GormStockHistoryRepository) Append(ctx context.Context, entries ...*inventory.StockHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.StockHistoryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.StockHistoryModelFromDomain(e)
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to append stock history: %w", err)
	}
	return nil
}

// ListByItem returns one page of an item's history, newest first
func (r *GormStockHistoryRepository) ListByItem(ctx context.Context, itemID uuid.UUID, filter shared.Filter) ([]inventory.StockHistoryEntry, int64, error) {
	filter = filter.Normalize()
	scoped := func() *gorm.DB {
		return applyTimeRange(
			r.db.WithContext(ctx).Model(&models.StockHistoryModel{}).Where("item_id = ?", itemID),
			"created_at", filter,
		)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count stock history: %w", err)
	}

	var rows []models.StockHistoryModel
	if err := scoped().
		Order("created_at DESC, id DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list stock history: %w", err)
	}

	entries := make([]inventory.StockHistoryEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, total, nil
}

// GormWastageRepository implements inventory.WastageRepository using GORM.
// The table is append-only.
type GormWastageRepository struct {
	db *gorm.DB
}

// NewGormWastageRepository creates a new GormWastageRepository
func NewGormWastageRepository(db *gorm.DB) *GormWastageRepository {
	return &GormWastageRepository{db: db}
}

// Append inserts a wastage event
func (r *GormWastageRepository) Append(ctx context.Context, event *inventory.WastageEvent) error {
	if err := r.db.WithContext(ctx).Create(models.WastageModelFromDomain(event)).Error; err != nil {
		return fmt.Errorf("failed to append wastage: %w", err)
	}
	return nil
}

// ListByItem returns one page of an item's wastage, newest first
func (r *GormWastageRepository) ListByItem(ctx context.Context, itemID uuid.UUID, filter shared.Filter) ([]inventory.WastageEvent, int64, error) {
	filter = filter.Normalize()
	scoped := func() *gorm.DB {
		return applyTimeRange(
			r.db.WithContext(ctx).Model(&models.WastageModel{}).Where("item_id = ?", itemID),
			"recorded_at", filter,
		)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count wastage: %w", err)
	}

	var rows []models.WastageModel
	if err := scoped().
		Order("recorded_at DESC, id DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list wastage: %w", err)
	}

	events := make([]inventory.WastageEvent, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, nil
}

// applyTimeRange narrows an audit query to the filter's [From, To] window
func applyTimeRange(query *gorm.DB, column string, filter shared.Filter) *gorm.DB {
	if filter.From != nil {
		query = query.Where(column+" >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where(column+" <= ?", filter.To.UTC())
	}
	return query
}

var (
	_ inventory.StockHistoryRepository = (*GormStockHistoryRepository)(nil)
	_ inventory.WastageRepository      = (*GormWastageRepository)(nil)
)
