package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReservationRepository implements inventory.ReservationRepository using GORM.
// Rows are only written while the owning stock row is locked, so no version
// column is needed.
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// FindActive returns the open reservation of an order for one item/warehouse
func (r *GormReservationRepository) FindActive(ctx context.Context, orderID string, itemID, warehouseID uuid.UUID) (*inventory.Reservation, error) {
	var model models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND item_id = ? AND warehouse_id = ? AND status = ?",
			orderID, itemID, warehouseID, inventory.ReservationStatusActive).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	return model.ToDomain(), nil
}

// ListByOrder returns every reservation row of an order, oldest first
func (r *GormReservationRepository) ListByOrder(ctx context.Context, orderID string) ([]*inventory.Reservation, error) {
	var rows []models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservationsToDomain(rows), nil
}

// FindExpired returns active reservations whose deadline passed before now,
// earliest deadline first. A non-positive limit returns every match.
func (r *GormReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*inventory.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", inventory.ReservationStatusActive, now.UTC()).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.ReservationModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find expired reservations: %w", err)
	}
	return reservationsToDomain(rows), nil
}

// Save inserts or updates a reservation
func (r *GormReservationRepository) Save(ctx context.Context, res *inventory.Reservation) error {
	if err := r.db.WithContext(ctx).Save(models.ReservationModelFromDomain(res)).Error; err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

func reservationsToDomain(rows []models.ReservationModel) []*inventory.Reservation {
	out := make([]*inventory.Reservation, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormReservationRepository implements inventory.ReservationRepository
var _ inventory.ReservationRepository = (*GormReservationRepository)(nil)
