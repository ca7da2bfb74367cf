package models

import (
	"github.com/erp/stockengine/internal/domain/inventory"
)

// WarehouseModel is the persistence model for the Warehouse entity.
type WarehouseModel struct {
	BaseModel
	Code      string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name      string `gorm:"type:varchar(200);not null"`
	IsDefault bool   `gorm:"not null;default:false;index"`
	IsActive  bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}

// ToDomain converts the persistence model to a domain Warehouse entity.
func (m *WarehouseModel) ToDomain() *inventory.Warehouse {
	return &inventory.Warehouse{
		BaseEntity: m.BaseModel.ToDomain(),
		Code:       m.Code,
		Name:       m.Name,
		IsDefault:  m.IsDefault,
		IsActive:   m.IsActive,
	}
}

// WarehouseModelFromDomain creates a persistence model from a domain Warehouse.
func WarehouseModelFromDomain(w *inventory.Warehouse) *WarehouseModel {
	m := &WarehouseModel{
		Code:      w.Code,
		Name:      w.Name,
		IsDefault: w.IsDefault,
		IsActive:  w.IsActive,
	}
	m.FromDomainBaseEntity(w.BaseEntity)
	return m
}
