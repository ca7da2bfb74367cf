package models

import (
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/google/uuid"
)

// ItemPolicyModel stores the item metadata the catalog publishes to the stock engine.
type ItemPolicyModel struct {
	ItemID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequiresQC     bool      `gorm:"column:requires_qc;not null"`
	RequiresExpiry bool      `gorm:"not null"`
	Unit           string    `gorm:"type:varchar(20);not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ItemPolicyModel) TableName() string {
	return "item_policies"
}

// ToDomain converts the persistence model to a domain ItemPolicy.
func (m *ItemPolicyModel) ToDomain() *inventory.ItemPolicy {
	return &inventory.ItemPolicy{
		ItemID:         m.ItemID,
		RequiresQC:     m.RequiresQC,
		RequiresExpiry: m.RequiresExpiry,
		Unit:           m.Unit,
	}
}

// ItemPolicyModelFromDomain creates a persistence model from a domain ItemPolicy.
func ItemPolicyModelFromDomain(p *inventory.ItemPolicy) *ItemPolicyModel {
	return &ItemPolicyModel{
		ItemID:         p.ItemID,
		RequiresQC:     p.RequiresQC,
		RequiresExpiry: p.RequiresExpiry,
		Unit:           p.Unit,
		UpdatedAt:      time.Now(),
	}
}

// AllModels lists every model the stock engine persists, in dependency order
func AllModels() []any {
	return []any{
		&WarehouseModel{},
		&ItemPolicyModel{},
		&StockItemModel{},
		&BatchModel{},
		&ReservationModel{},
		&StockHistoryModel{},
		&WastageModel{},
	}
}
