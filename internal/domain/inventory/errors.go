package inventory

import (
	"fmt"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/shopspring/decimal"
)

func errInvalidQuantity(msg string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInvalidQuantity, msg)
}

func errOverConsumption(b *Batch, kind string, qty decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(shared.CodeOverConsumption,
		fmt.Sprintf("Cannot %s %s from batch %s: only %s remaining", kind, qty.String(), b.BatchNumber, b.Remaining().String())).
		WithDetail("batch_id", b.ID.String()).
		WithDetail("requested", qty.String()).
		WithDetail("remaining", b.Remaining().String())
}

func errInvalidTransition(from QCStatus, action string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInvalidTransition,
		fmt.Sprintf("Cannot %s a batch in %s state", action, from)).
		WithDetail("qc_status", string(from))
}

// ErrInsufficientAvailableStock builds the soft reservation failure
func ErrInsufficientAvailableStock(requested, sellable decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInsufficientAvailableStock,
		fmt.Sprintf("Insufficient available stock: requested %s, sellable %s", requested.String(), sellable.String())).
		WithDetail("requested", requested.String()).
		WithDetail("sellable", sellable.String())
}

// ErrInsufficientReleasedStock builds the FEFO shortfall error
func ErrInsufficientReleasedStock(requested, released decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInsufficientReleasedStock,
		fmt.Sprintf("Insufficient QC-released stock: requested %s, released %s", requested.String(), released.String())).
		WithDetail("requested", requested.String()).
		WithDetail("released", released.String())
}

// ErrNoDefaultWarehouse is returned when no warehouse can be resolved
var ErrNoDefaultWarehouse = shared.NewDomainError(shared.CodeNoDefaultWarehouse, "No default active warehouse is configured")

// ValidatePositive rejects zero and negative quantities
func ValidatePositive(qty decimal.Decimal, field string) error {
	if !qty.IsPositive() {
		return errInvalidQuantity(field + " must be greater than zero")
	}
	return nil
}
