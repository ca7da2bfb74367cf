package inventory

import (
	"strings"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockItem is the per item/warehouse stock aggregate.
// Invariant: 0 <= reserved <= available.
type StockItem struct {
	shared.BaseAggregateRoot
	ItemID      uuid.UUID
	WarehouseID uuid.UUID

	available         decimal.Decimal
	reserved          decimal.Decimal
	qcHold            decimal.Decimal
	lowStockThreshold decimal.Decimal
	avgCost           decimal.Decimal
}

// NewStockItem creates an empty aggregate for an item in a warehouse
func NewStockItem(itemID, warehouseID uuid.UUID) (*StockItem, error) {
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidItem, "Item ID is required")
	}
	if warehouseID == uuid.Nil {
		return nil, ErrNoDefaultWarehouse
	}
	return &StockItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ItemID:            itemID,
		WarehouseID:       warehouseID,
		available:         decimal.Zero,
		reserved:          decimal.Zero,
		qcHold:            decimal.Zero,
		lowStockThreshold: decimal.Zero,
		avgCost:           decimal.Zero,
	}, nil
}

// StockItemSnapshot is the flat persisted form of the aggregate
type StockItemSnapshot struct {
	ID                uuid.UUID
	ItemID            uuid.UUID
	WarehouseID       uuid.UUID
	AvailableQuantity decimal.Decimal
	ReservedQuantity  decimal.Decimal
	QCHoldQuantity    decimal.Decimal
	LowStockThreshold decimal.Decimal
	AvgCost           decimal.Decimal
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RestoreStockItem rebuilds the aggregate from storage
func RestoreStockItem(s StockItemSnapshot) (*StockItem, error) {
	if s.ReservedQuantity.IsNegative() || s.ReservedQuantity.GreaterThan(s.AvailableQuantity) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput,
			"stock row "+s.ID.String()+" violates reserved <= available")
	}
	item := &StockItem{
		ItemID:            s.ItemID,
		WarehouseID:       s.WarehouseID,
		available:         s.AvailableQuantity,
		reserved:          s.ReservedQuantity,
		qcHold:            s.QCHoldQuantity,
		lowStockThreshold: s.LowStockThreshold,
		avgCost:           s.AvgCost,
	}
	item.ID = s.ID
	item.Version = s.Version
	item.CreatedAt = s.CreatedAt
	item.UpdatedAt = s.UpdatedAt
	return item, nil
}

// Snapshot returns the flat persisted form
func (s *StockItem) Snapshot() StockItemSnapshot {
	return StockItemSnapshot{
		ID:                s.ID,
		ItemID:            s.ItemID,
		WarehouseID:       s.WarehouseID,
		AvailableQuantity: s.available,
		ReservedQuantity:  s.reserved,
		QCHoldQuantity:    s.qcHold,
		LowStockThreshold: s.lowStockThreshold,
		AvgCost:           s.avgCost,
		Version:           s.Version,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (s *StockItem) Available() decimal.Decimal { return s.available }
func (s *StockItem) Reserved() decimal.Decimal { return s.reserved }
func (s *StockItem) QCHold() decimal.Decimal { return s.qcHold }
func (s *StockItem) LowStockThreshold() decimal.Decimal { return s.lowStockThreshold }
func (s *StockItem) AvgCost() decimal.Decimal { return s.avgCost }

// Sellable is the quantity shown to buyers
func (s *StockItem) Sellable() decimal.Decimal {
	return s.available.Sub(s.reserved)
}

// CanReserve reports whether qty fits within sellable stock
func (s *StockItem) CanReserve(qty decimal.Decimal) bool {
	return s.Sellable().GreaterThanOrEqual(qty)
}

// IsAtOrBelowThreshold reports whether the low-stock signal applies
func (s *StockItem) IsAtOrBelowThreshold() bool {
	return s.Sellable().LessThanOrEqual(s.lowStockThreshold)
}

// TotalValue is on-hand quantity at average cost
func (s *StockItem) TotalValue() decimal.Decimal {
	return s.available.Mul(s.avgCost)
}

// Receive books a new batch into the aggregate and recomputes the weighted
// average cost over on-hand stock
func (s *StockItem) Receive(b *Batch) error {
	if b.ItemID != s.ItemID || b.WarehouseID != s.WarehouseID {
		return shared.NewDomainError(shared.CodeInvalidInput, "batch does not belong to this stock item")
	}
	qty := b.Remaining()
	if err := ValidatePositive(qty, "Received quantity"); err != nil {
		return err
	}

	onHand := s.available
	total := onHand.Add(qty)
	value := onHand.Mul(s.avgCost).Add(qty.Mul(b.UnitCost))
	s.avgCost = value.Div(total).Round(4)
	s.available = total
	if !b.IsReleased() {
		s.qcHold = s.qcHold.Add(qty)
	}
	s.touch()

	s.AddDomainEvent(&BatchReceivedEvent{
		stockEvent:  newStockEvent(EventTypeBatchReceived, s),
		BatchID:     b.ID,
		BatchNumber: b.BatchNumber,
		Quantity:    qty,
		UnitCost:    b.UnitCost,
		AvgCost:     s.avgCost,
		QCStatus:    b.QC().Status(),
	})
	return nil
}

// Reserve moves qty from sellable into reserved. A shortfall returns
// INSUFFICIENT_AVAILABLE_STOCK and leaves the aggregate untouched.
func (s *StockItem) Reserve(qty decimal.Decimal, orderID string) error {
	if err := ValidatePositive(qty, "Reservation quantity"); err != nil {
		return err
	}
	if !s.CanReserve(qty) {
		return ErrInsufficientAvailableStock(qty, s.Sellable())
	}
	s.reserved = s.reserved.Add(qty)
	s.touch()

	s.AddDomainEvent(&StockReservedEvent{
		stockEvent: newStockEvent(EventTypeStockReserved, s),
		OrderID:    orderID,
		Quantity:   qty,
		Reserved:   s.reserved,
	})
	s.checkThreshold()
	return nil
}

// Release returns up to qty from reserved back to sellable, floored at zero.
// It returns the amount actually released.
func (s *StockItem) Release(qty decimal.Decimal, orderID string) (decimal.Decimal, error) {
	if err := ValidatePositive(qty, "Release quantity"); err != nil {
		return decimal.Zero, err
	}
	released := decimal.Min(qty, s.reserved)
	if !released.IsPositive() {
		return decimal.Zero, nil
	}
	s.reserved = s.reserved.Sub(released)
	s.touch()

	s.AddDomainEvent(&StockReleasedEvent{
		stockEvent: newStockEvent(EventTypeStockReleased, s),
		OrderID:    orderID,
		Quantity:   released,
		Reserved:   s.reserved,
	})
	return released, nil
}

// Deduct records consumption of qty at fulfilment. reservedPortion is the part
// of qty that was reserved for the order; the remainder must fit in sellable.
// The caller consumes the FEFO-allocated batches in the same transaction.
func (s *StockItem) Deduct(qty, reservedPortion decimal.Decimal, orderID string, lines []DeductedBatch) error {
	if err := ValidatePositive(qty, "Deduction quantity"); err != nil {
		return err
	}
	reservedPortion = decimal.Min(decimal.Max(reservedPortion, decimal.Zero), qty, s.reserved)
	unreserved := qty.Sub(reservedPortion)
	if unreserved.GreaterThan(s.Sellable()) {
		return ErrInsufficientAvailableStock(unreserved, s.Sellable())
	}
	s.reserved = s.reserved.Sub(reservedPortion)
	s.available = s.available.Sub(qty)
	s.touch()

	s.AddDomainEvent(&StockDeductedEvent{
		stockEvent:      newStockEvent(EventTypeStockDeducted, s),
		OrderID:         orderID,
		Quantity:        qty,
		ReservedPortion: reservedPortion,
		Batches:         lines,
	})
	s.checkThreshold()
	return nil
}

// TransferOut removes qty of released stock moved to another warehouse
func (s *StockItem) TransferOut(qty decimal.Decimal, to uuid.UUID) error {
	if err := ValidatePositive(qty, "Transfer quantity"); err != nil {
		return err
	}
	if qty.GreaterThan(s.Sellable()) {
		return ErrInsufficientAvailableStock(qty, s.Sellable())
	}
	s.available = s.available.Sub(qty)
	s.touch()

	s.AddDomainEvent(&StockTransferredEvent{
		stockEvent:    newStockEvent(EventTypeStockTransferred, s),
		ToWarehouseID: to,
		Quantity:      qty,
	})
	s.checkThreshold()
	return nil
}

// WriteOff removes wasted stock. Available is floored at zero and reserved is
// clamped to the new available so the reservation bound holds; the clamped
// amount is returned.
func (s *StockItem) WriteOff(batch *Batch, qty decimal.Decimal, unit, reason string, wasHeld bool) decimal.Decimal {
	s.available = decimal.Max(s.available.Sub(qty), decimal.Zero)
	if wasHeld {
		s.qcHold = decimal.Max(s.qcHold.Sub(qty), decimal.Zero)
	}
	clamped := decimal.Zero
	if s.reserved.GreaterThan(s.available) {
		clamped = s.reserved.Sub(s.available)
		s.reserved = s.available
	}
	s.touch()

	s.AddDomainEvent(&WastageRecordedEvent{
		stockEvent: newStockEvent(EventTypeWastageRecorded, s),
		BatchID:    batch.ID,
		Quantity:   qty,
		Unit:       unit,
		Reason:     reason,
	})
	s.checkThreshold()
	return clamped
}

// Adjust is an administrative set-to-value. It returns the applied delta.
// The caller applies the matching ledger change before persisting.
func (s *StockItem) Adjust(newQuantity decimal.Decimal, reason string) (decimal.Decimal, error) {
	if strings.TrimSpace(reason) == "" {
		return decimal.Zero, shared.NewDomainError(shared.CodeInvalidReason, "Adjustment reason is required")
	}
	if newQuantity.IsNegative() {
		return decimal.Zero, errInvalidQuantity("Adjusted quantity cannot be negative")
	}
	if newQuantity.LessThan(s.reserved) {
		return decimal.Zero, errInvalidQuantity("Adjusted quantity cannot be below reserved quantity " + s.reserved.String())
	}
	before := s.available
	delta := newQuantity.Sub(before)
	s.available = newQuantity
	s.touch()

	s.AddDomainEvent(&StockAdjustedEvent{
		stockEvent: newStockEvent(EventTypeStockAdjusted, s),
		Before:     before,
		After:      newQuantity,
		Reason:     reason,
	})
	s.checkThreshold()
	return delta, nil
}

// SetLowStockThreshold configures the alerting threshold
func (s *StockItem) SetLowStockThreshold(threshold decimal.Decimal) error {
	if threshold.IsNegative() {
		return errInvalidQuantity("Low stock threshold cannot be negative")
	}
	s.lowStockThreshold = threshold
	s.touch()
	return nil
}

// RecordQCChange refreshes the QC hold after a batch transition and raises the
// matching event
func (s *StockItem) RecordQCChange(b *Batch, from QCStatus, batches []*Batch) {
	s.qcHold = heldQuantity(batches)
	s.touch()
	s.AddDomainEvent(&BatchQCChangedEvent{
		stockEvent: newStockEvent(EventTypeBatchQCChanged, s),
		BatchID:    b.ID,
		From:       from,
		To:         b.QC().Status(),
		Result:     b.QC().Result(),
	})
}

// RefreshQCHold recomputes the QC hold from the item's batches
func (s *StockItem) RefreshQCHold(batches []*Batch) {
	s.qcHold = heldQuantity(batches)
}

// ReconcileResult reports the drift found between aggregate and ledger
type ReconcileResult struct {
	AvailableBefore decimal.Decimal `json:"available_before"`
	AvailableAfter  decimal.Decimal `json:"available_after"`
	QCHoldBefore    decimal.Decimal `json:"qc_hold_before"`
	QCHoldAfter     decimal.Decimal `json:"qc_hold_after"`
	ReservedBefore  decimal.Decimal `json:"reserved_before"`
	ReservedAfter   decimal.Decimal `json:"reserved_after"`
}

// HasDrift reports whether any aggregate counter changed
func (r ReconcileResult) HasDrift() bool {
	return !r.AvailableBefore.Equal(r.AvailableAfter) ||
		!r.QCHoldBefore.Equal(r.QCHoldAfter) ||
		!r.ReservedBefore.Equal(r.ReservedAfter)
}

// Reconcile recomputes available and QC hold from the batch ledger
func (s *StockItem) Reconcile(batches []*Batch) ReconcileResult {
	res := ReconcileResult{
		AvailableBefore: s.available,
		QCHoldBefore:    s.qcHold,
		ReservedBefore:  s.reserved,
	}
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.Remaining())
	}
	s.available = total
	s.qcHold = heldQuantity(batches)
	if s.reserved.GreaterThan(s.available) {
		s.reserved = s.available
	}
	res.AvailableAfter = s.available
	res.QCHoldAfter = s.qcHold
	res.ReservedAfter = s.reserved
	if res.HasDrift() {
		s.touch()
	}
	return res
}

func heldQuantity(batches []*Batch) decimal.Decimal {
	held := decimal.Zero
	for _, b := range batches {
		if !b.IsReleased() {
			held = held.Add(b.Remaining())
		}
	}
	return held
}

func (s *StockItem) checkThreshold() {
	if s.IsAtOrBelowThreshold() {
		s.AddDomainEvent(NewStockBelowThresholdEvent(s))
	}
}

// NewStockBelowThresholdEvent creates the low-stock signal for an item
func NewStockBelowThresholdEvent(s *StockItem) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		stockEvent: newStockEvent(EventTypeStockBelowThreshold, s),
		Sellable:   s.Sellable(),
		Available:  s.available,
		Reserved:   s.reserved,
		Threshold:  s.lowStockThreshold,
	}
}

func (s *StockItem) touch() {
	s.UpdatedAt = time.Now()
}
