package inventory

import (
	"strings"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// WastageEvent is an immutable write-off of spoiled, damaged or lost stock
type WastageEvent struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	BatchID     uuid.UUID
	Quantity    valueobject.Quantity
	Reason      string
	ReportedBy  string
	RecordedAt  time.Time
}

// ValidateWastageReason rejects blank justifications
func ValidateWastageReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError(shared.CodeMissingReason, "Wastage reason is required")
	}
	return nil
}

// NewWastageEvent records a write-off against a batch
func NewWastageEvent(batch *Batch, qty valueobject.Quantity, reason, reportedBy string) (*WastageEvent, error) {
	if !qty.IsPositive() {
		return nil, errInvalidQuantity("Wastage quantity must be greater than zero")
	}
	if err := ValidateWastageReason(reason); err != nil {
		return nil, err
	}
	return &WastageEvent{
		ID:          uuid.New(),
		ItemID:      batch.ItemID,
		WarehouseID: batch.WarehouseID,
		BatchID:     batch.ID,
		Quantity:    qty,
		Reason:      strings.TrimSpace(reason),
		ReportedBy:  reportedBy,
		RecordedAt:  time.Now(),
	}, nil
}
