package inventory

import (
	"strings"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationStatus tracks the life of an order's claim on stock
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// Reservation is the audit row linking an order to the quantity it holds on
// an item. Only one row per order/item/warehouse is active at a time.
type Reservation struct {
	shared.BaseEntity
	OrderID     string
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal // total ever reserved on this row
	Outstanding decimal.Decimal // still held
	Status      ReservationStatus
	ExpiresAt   *time.Time
	ClosedAt    *time.Time
}

// NewReservation opens a reservation row
func NewReservation(orderID string, itemID, warehouseID uuid.UUID, qty decimal.Decimal, expiresAt *time.Time) (*Reservation, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Order ID is required for a reservation record")
	}
	if err := ValidatePositive(qty, "Reservation quantity"); err != nil {
		return nil, err
	}
	return &Reservation{
		BaseEntity:  shared.NewBaseEntity(),
		OrderID:     orderID,
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Quantity:    qty,
		Outstanding: qty,
		Status:      ReservationStatusActive,
		ExpiresAt:   expiresAt,
	}, nil
}

// IsActive returns true while the reservation still holds stock
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// IsExpired returns true if the hold outlived its deadline
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.IsActive() && r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Add extends an active reservation and refreshes its deadline
func (r *Reservation) Add(qty decimal.Decimal, expiresAt *time.Time) {
	r.Quantity = r.Quantity.Add(qty)
	r.Outstanding = r.Outstanding.Add(qty)
	if expiresAt != nil {
		r.ExpiresAt = expiresAt
	}
	r.UpdatedAt = time.Now()
}

// Release gives back up to qty and returns what was actually released
func (r *Reservation) Release(qty decimal.Decimal) decimal.Decimal {
	return r.take(qty, ReservationStatusReleased)
}

// Fulfill converts up to qty of the hold into a deduction
func (r *Reservation) Fulfill(qty decimal.Decimal) decimal.Decimal {
	return r.take(qty, ReservationStatusFulfilled)
}

// Expire releases whatever is still held
func (r *Reservation) Expire() decimal.Decimal {
	return r.take(r.Outstanding, ReservationStatusExpired)
}

func (r *Reservation) take(qty decimal.Decimal, closeAs ReservationStatus) decimal.Decimal {
	if !r.IsActive() || !qty.IsPositive() {
		return decimal.Zero
	}
	taken := decimal.Min(qty, r.Outstanding)
	r.Outstanding = r.Outstanding.Sub(taken)
	now := time.Now()
	r.UpdatedAt = now
	if !r.Outstanding.IsPositive() {
		r.Status = closeAs
		r.ClosedAt = &now
	}
	return taken
}
