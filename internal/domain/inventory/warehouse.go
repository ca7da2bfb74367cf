package inventory

import (
	"strings"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
)

// Warehouse is a stock location. Exactly one active warehouse may be the
// default used when an order carries no warehouse.
type Warehouse struct {
	shared.BaseEntity
	Code      string
	Name      string
	IsDefault bool
	IsActive  bool
}

// NewWarehouse creates an active, non-default warehouse
func NewWarehouse(code, name string) (*Warehouse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Warehouse code is required")
	}
	return &Warehouse{
		BaseEntity: shared.NewBaseEntity(),
		Code:       code,
		Name:       strings.TrimSpace(name),
		IsActive:   true,
	}, nil
}

// ResolveWarehouse picks the explicit warehouse or falls back to the default one
func ResolveWarehouse(explicit *uuid.UUID, defaultWarehouse *Warehouse) (uuid.UUID, error) {
	if explicit != nil && *explicit != uuid.Nil {
		return *explicit, nil
	}
	if defaultWarehouse == nil || !defaultWarehouse.IsActive || !defaultWarehouse.IsDefault {
		return uuid.Nil, ErrNoDefaultWarehouse
	}
	return defaultWarehouse.ID, nil
}
