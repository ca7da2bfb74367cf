package inventory

import (
	"github.com/erp/stockengine/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// ItemPolicy is the item/unit metadata the engine consumes from the catalog
type ItemPolicy struct {
	ItemID         uuid.UUID
	RequiresQC     bool
	RequiresExpiry bool
	Unit           string
}

// DefaultItemPolicy applies when the catalog has not published a policy
func DefaultItemPolicy(itemID uuid.UUID, requiresQC bool, unit string) ItemPolicy {
	if unit == "" {
		unit = valueobject.DefaultUnit
	}
	return ItemPolicy{ItemID: itemID, RequiresQC: requiresQC, Unit: unit}
}
