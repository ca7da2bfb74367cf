package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchSource records how a batch entered the ledger
type BatchSource string

const (
	BatchSourceReceipt    BatchSource = "receipt"
	BatchSourceAdjustment BatchSource = "adjustment"
	BatchSourceTransfer   BatchSource = "transfer"
)

// Batch is one physical receipt of stock. Its counters only grow and the
// batch is never deleted; it is retired once nothing remains.
type Batch struct {
	shared.BaseEntity
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	BatchNumber string
	UnitCost    decimal.Decimal
	Expiry      ExpiryDate
	Source      BatchSource
	ReceivedAt  time.Time
	Version     int

	received    decimal.Decimal
	consumed    decimal.Decimal
	transferred decimal.Decimal
	writtenOff  decimal.Decimal
	qc          QCState
}

// NewBatchParams holds the inputs of a stock receipt
type NewBatchParams struct {
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	BatchNumber string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Expiry      ExpiryDate
	Source      BatchSource
	RequiresQC  bool
	ReceivedAt  time.Time
}

// NewBatch creates a batch for a receipt. Items that skip QC are released
// immediately; all others start pending.
func NewBatch(p NewBatchParams) (*Batch, error) {
	if p.ItemID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidItem, "Item ID is required")
	}
	if p.WarehouseID == uuid.Nil {
		return nil, ErrNoDefaultWarehouse
	}
	if err := ValidatePositive(p.Quantity, "Received quantity"); err != nil {
		return nil, err
	}
	if p.UnitCost.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidCost, "Unit cost cannot be negative")
	}
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}
	if p.Source == "" {
		p.Source = BatchSourceReceipt
	}

	b := &Batch{
		BaseEntity:  shared.NewBaseEntity(),
		ItemID:      p.ItemID,
		WarehouseID: p.WarehouseID,
		BatchNumber: strings.TrimSpace(p.BatchNumber),
		UnitCost:    p.UnitCost,
		Expiry:      p.Expiry,
		Source:      p.Source,
		ReceivedAt:  p.ReceivedAt,
		Version:     1,
		received:    p.Quantity,
		consumed:    decimal.Zero,
		transferred: decimal.Zero,
		writtenOff:  decimal.Zero,
	}
	if b.BatchNumber == "" {
		b.BatchNumber = fmt.Sprintf("B%s-%s", p.ReceivedAt.Format("20060102"), strings.ToUpper(b.ID.String()[:8]))
	}
	if p.RequiresQC {
		b.qc = PendingQC()
	} else {
		b.qc = AutoReleasedQC(p.ReceivedAt)
	}
	return b, nil
}

// BatchSnapshot is the flat persisted form of a batch
type BatchSnapshot struct {
	ID                  uuid.UUID
	ItemID              uuid.UUID
	WarehouseID         uuid.UUID
	BatchNumber         string
	ReceivedQuantity    decimal.Decimal
	ConsumedQuantity    decimal.Decimal
	TransferredQuantity decimal.Decimal
	WrittenOffQuantity  decimal.Decimal
	UnitCost            decimal.Decimal
	ExpiryDate          *time.Time
	QCStatus            QCStatus
	LastQCResult        QCResult
	LastQCAt            *time.Time
	LastQCNotes         string
	Source              BatchSource
	ReceivedAt          time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int
}

// RestoreBatch rebuilds a batch from storage, refusing rows that break the
// ledger invariants
func RestoreBatch(s BatchSnapshot) (*Batch, error) {
	qc, err := RestoreQCState(s.QCStatus, s.LastQCResult, s.LastQCAt, s.LastQCNotes)
	if err != nil {
		return nil, err
	}
	b := &Batch{
		BaseEntity: shared.BaseEntity{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		},
		ItemID:      s.ItemID,
		WarehouseID: s.WarehouseID,
		BatchNumber: s.BatchNumber,
		UnitCost:    s.UnitCost,
		Expiry:      ExpiryFromPtr(s.ExpiryDate),
		Source:      s.Source,
		ReceivedAt:  s.ReceivedAt,
		Version:     s.Version,
		received:    s.ReceivedQuantity,
		consumed:    s.ConsumedQuantity,
		transferred: s.TransferredQuantity,
		writtenOff:  s.WrittenOffQuantity,
		qc:          qc,
	}
	for _, q := range []decimal.Decimal{b.received, b.consumed, b.transferred, b.writtenOff} {
		if q.IsNegative() {
			return nil, shared.NewDomainError(shared.CodeInvalidInput, "batch "+s.BatchNumber+" has a negative counter")
		}
	}
	if b.Remaining().IsNegative() {
		return nil, shared.NewDomainError(shared.CodeOverConsumption, "batch "+s.BatchNumber+" is over-consumed in storage")
	}
	return b, nil
}

// Snapshot returns the flat persisted form
func (b *Batch) Snapshot() BatchSnapshot {
	return BatchSnapshot{
		ID:                  b.ID,
		ItemID:              b.ItemID,
		WarehouseID:         b.WarehouseID,
		BatchNumber:         b.BatchNumber,
		ReceivedQuantity:    b.received,
		ConsumedQuantity:    b.consumed,
		TransferredQuantity: b.transferred,
		WrittenOffQuantity:  b.writtenOff,
		UnitCost:            b.UnitCost,
		ExpiryDate:          b.Expiry.Ptr(),
		QCStatus:            b.qc.Status(),
		LastQCResult:        b.qc.Result(),
		LastQCAt:            b.qc.At(),
		LastQCNotes:         b.qc.Notes(),
		Source:              b.Source,
		ReceivedAt:          b.ReceivedAt,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
		Version:             b.Version,
	}
}

func (b *Batch) Received() decimal.Decimal { return b.received }
func (b *Batch) Consumed() decimal.Decimal { return b.consumed }
func (b *Batch) Transferred() decimal.Decimal { return b.transferred }
func (b *Batch) WrittenOff() decimal.Decimal { return b.writtenOff }
func (b *Batch) QC() QCState { return b.qc }

// Remaining is received minus everything that left the batch
func (b *Batch) Remaining() decimal.Decimal {
	return b.received.Sub(b.consumed).Sub(b.transferred).Sub(b.writtenOff)
}

// IsReleased reports whether the allocator may draw from this batch
func (b *Batch) IsReleased() bool {
	return b.qc.IsReleased()
}

// IsRetired is true once nothing remains
func (b *Batch) IsRetired() bool {
	return !b.Remaining().IsPositive()
}

// Value returns remaining quantity at batch cost
func (b *Batch) Value() decimal.Decimal {
	return b.Remaining().Mul(b.UnitCost)
}

// Consume records a sale-driven deduction
func (b *Batch) Consume(qty decimal.Decimal) error {
	if err := b.guard("consume", qty); err != nil {
		return err
	}
	b.consumed = b.consumed.Add(qty)
	b.touch()
	return nil
}

// Transfer records stock moved to another warehouse
func (b *Batch) Transfer(qty decimal.Decimal) error {
	if err := b.guard("transfer", qty); err != nil {
		return err
	}
	b.transferred = b.transferred.Add(qty)
	b.touch()
	return nil
}

// WriteOff records wastage or a downward adjustment
func (b *Batch) WriteOff(qty decimal.Decimal) error {
	if err := b.guard("write off", qty); err != nil {
		return err
	}
	b.writtenOff = b.writtenOff.Add(qty)
	b.touch()
	return nil
}

func (b *Batch) guard(kind string, qty decimal.Decimal) error {
	if err := ValidatePositive(qty, "Quantity"); err != nil {
		return err
	}
	if qty.GreaterThan(b.Remaining()) {
		return errOverConsumption(b, kind, qty)
	}
	return nil
}

// Quarantine parks a pending batch
func (b *Batch) Quarantine(notes string, at time.Time) error {
	next, err := b.qc.Quarantine(notes, at)
	if err != nil {
		return err
	}
	b.qc = next
	b.touch()
	return nil
}

// Inspect records a QC inspection
func (b *Batch) Inspect(result QCResult, notes string, at time.Time) error {
	next, err := b.qc.Inspect(result, notes, at)
	if err != nil {
		return err
	}
	b.qc = next
	b.touch()
	return nil
}

// Release clears the batch for consumption
func (b *Batch) Release(at time.Time) error {
	next, err := b.qc.Release(at)
	if err != nil {
		return err
	}
	b.qc = next
	b.touch()
	return nil
}

func (b *Batch) touch() {
	b.UpdatedAt = time.Now()
}
