package handler

import (
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// toDecimal converts a JSON number to a decimal, rejecting NaN and
// infinities with the given domain code
func toDecimal(code, field string, f float64) (decimal.Decimal, error) {
	d, err := valueobject.DecimalFromFloat(f)
	if err != nil {
		return decimal.Zero, shared.NewDomainError(code, field+" must be a finite number")
	}
	return d, nil
}

// toQuantity converts a JSON quantity
func toQuantity(f float64) (decimal.Decimal, error) {
	return toDecimal(shared.CodeInvalidQuantity, "Quantity", f)
}

// parseOptionalUUID parses an optional identifier. An empty string yields nil.
func parseOptionalUUID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Invalid "+field+" format")
	}
	return &id, nil
}

// parseDate parses a calendar date or an RFC3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseOptionalDate parses an optional date string. An empty string yields nil.
func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, field+" must be a date (YYYY-MM-DD) or RFC3339 timestamp")
	}
	return &t, nil
}
