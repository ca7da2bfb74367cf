package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUnit is used when a caller does not name a unit of measure
const DefaultUnit = "unit"

var (
	// ErrNegativeQuantity is returned for quantities below zero
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
	// ErrNonFiniteQuantity is returned for NaN or infinite float input
	ErrNonFiniteQuantity = errors.New("quantity must be a finite number")
	// ErrUnitMismatch is returned when combining quantities of different units
	ErrUnitMismatch = errors.New("quantities have different units")
)

// Quantity is an immutable amount of stock with its unit of measure.
// Items sold by weight or volume use fractional values.
type Quantity struct {
	value decimal.Decimal
	unit  string
}

// NewQuantity creates a new Quantity with the specified value and unit
func NewQuantity(value decimal.Decimal, unit string) (Quantity, error) {
	if value.IsNegative() {
		return Quantity{}, ErrNegativeQuantity
	}
	return Quantity{
		value: value,
		unit:  normalizeUnit(unit),
	}, nil
}

// NewQuantityFromFloat creates Quantity from a float64 value, rejecting NaN and Inf
func NewQuantityFromFloat(value float64, unit string) (Quantity, error) {
	d, err := DecimalFromFloat(value)
	if err != nil {
		return Quantity{}, err
	}
	return NewQuantity(d, unit)
}

// NewQuantityFromInt creates Quantity from an int64 value
func NewQuantityFromInt(value int64, unit string) (Quantity, error) {
	return NewQuantity(decimal.NewFromInt(value), unit)
}

// MustNewQuantity creates a Quantity and panics on error
func MustNewQuantity(value decimal.Decimal, unit string) Quantity {
	q, err := NewQuantity(value, unit)
	if err != nil {
		panic(err)
	}
	return q
}

// ZeroQuantity returns a zero quantity with the specified unit
func ZeroQuantity(unit string) Quantity {
	return Quantity{value: decimal.Zero, unit: normalizeUnit(unit)}
}

// DecimalFromFloat converts boundary float input into a decimal.
// Non-finite values cannot be represented and are rejected.
func DecimalFromFloat(value float64) (decimal.Decimal, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero, ErrNonFiniteQuantity
	}
	return decimal.NewFromFloat(value), nil
}

func normalizeUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return DefaultUnit
	}
	return unit
}

// Amount returns the decimal value
func (q Quantity) Amount() decimal.Decimal {
	return q.value
}

// Unit returns the unit of measurement
func (q Quantity) Unit() string {
	return q.unit
}

// IsZero returns true if the quantity is zero
func (q Quantity) IsZero() bool {
	return q.value.IsZero()
}

// IsPositive returns true if the quantity is positive
func (q Quantity) IsPositive() bool {
	return q.value.IsPositive()
}

// Add returns a new Quantity with the sum of both quantities
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if q.unit != other.unit {
		return Quantity{}, fmt.Errorf("%w: %s and %s", ErrUnitMismatch, q.unit, other.unit)
	}
	return Quantity{value: q.value.Add(other.value), unit: q.unit}, nil
}

// Subtract returns a new Quantity with the difference.
// The result may not drop below zero.
func (q Quantity) Subtract(other Quantity) (Quantity, error) {
	if q.unit != other.unit {
		return Quantity{}, fmt.Errorf("%w: %s and %s", ErrUnitMismatch, q.unit, other.unit)
	}
	result := q.value.Sub(other.value)
	if result.IsNegative() {
		return Quantity{}, ErrNegativeQuantity
	}
	return Quantity{value: result, unit: q.unit}, nil
}

// Equals returns true if both quantities are equal (same value and unit)
func (q Quantity) Equals(other Quantity) bool {
	return q.unit == other.unit && q.value.Equal(other.value)
}

// String returns a string representation of the Quantity
func (q Quantity) String() string {
	if q.unit == "" {
		return q.value.String()
	}
	return fmt.Sprintf("%s %s", q.value.String(), q.unit)
}

// MarshalJSON implements json.Marshaler
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value string `json:"value"`
		Unit  string `json:"unit"`
	}{
		Value: q.value.String(),
		Unit:  q.unit,
	})
}

// UnmarshalJSON implements json.Unmarshaler and keeps the non-negative invariant
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var v struct {
		Value string `json:"value"`
		Unit  string `json:"unit"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	value, err := decimal.NewFromString(v.Value)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	parsed, err := NewQuantity(value, v.Unit)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
