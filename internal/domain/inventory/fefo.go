package inventory

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SortFEFO orders batches by expiry ascending with untracked expiry last.
// Ties fall back to receipt order, then creation, then ID, so the order is
// total and repeatable.
func SortFEFO(batches []*Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if c := a.Expiry.Compare(b.Expiry); c != 0 {
			return c < 0
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// AllocationLine takes Quantity from one batch
type AllocationLine struct {
	Batch    *Batch
	Quantity decimal.Decimal
}

// Allocation is a complete plan for drawing stock from batches
type Allocation struct {
	Lines []AllocationLine
	Total decimal.Decimal
}

// DeductedBatches converts the plan into event payload form
func (a *Allocation) DeductedBatches() []DeductedBatch {
	out := make([]DeductedBatch, 0, len(a.Lines))
	for _, l := range a.Lines {
		out = append(out, DeductedBatch{BatchID: l.Batch.ID, Quantity: l.Quantity})
	}
	return out
}

// Batches returns the batches touched by the plan
func (a *Allocation) Batches() []*Batch {
	out := make([]*Batch, 0, len(a.Lines))
	for _, l := range a.Lines {
		out = append(out, l.Batch)
	}
	return out
}

// Consume applies the plan as sale-driven consumption
func (a *Allocation) Consume() error {
	return a.apply((*Batch).Consume)
}

// Transfer applies the plan as an outbound transfer
func (a *Allocation) Transfer() error {
	return a.apply((*Batch).Transfer)
}

// WriteOff applies the plan as a write-off
func (a *Allocation) WriteOff() error {
	return a.apply((*Batch).WriteOff)
}

func (a *Allocation) apply(fn func(*Batch, decimal.Decimal) error) error {
	for _, l := range a.Lines {
		if err := fn(l.Batch, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// AllocateFEFO plans a draw of qty from QC-released batches, soonest expiry
// first. If released stock cannot cover qty the whole request fails with
// INSUFFICIENT_RELEASED_STOCK and nothing is planned; non-released batches are
// never used as a fallback.
func AllocateFEFO(batches []*Batch, qty decimal.Decimal) (*Allocation, error) {
	if err := ValidatePositive(qty, "Quantity"); err != nil {
		return nil, err
	}
	eligible := make([]*Batch, 0, len(batches))
	releasedTotal := decimal.Zero
	for _, b := range batches {
		if b.IsReleased() && b.Remaining().IsPositive() {
			eligible = append(eligible, b)
			releasedTotal = releasedTotal.Add(b.Remaining())
		}
	}
	if releasedTotal.LessThan(qty) {
		return nil, ErrInsufficientReleasedStock(qty, releasedTotal)
	}
	SortFEFO(eligible)
	return greedy(eligible, qty), nil
}

// AllocateWriteOff plans a downward adjustment over every batch with stock,
// regardless of QC state, FEFO ordered. The uncovered remainder is returned
// when the ledger holds less than qty.
func AllocateWriteOff(batches []*Batch, qty decimal.Decimal) (*Allocation, decimal.Decimal) {
	withStock := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		if b.Remaining().IsPositive() {
			withStock = append(withStock, b)
		}
	}
	SortFEFO(withStock)
	plan := greedy(withStock, qty)
	return plan, qty.Sub(plan.Total)
}

// SelectWastageBatch picks the most relevant batch for a write-off without an
// explicit batch: the soonest-expiring one that still has stock
func SelectWastageBatch(batches []*Batch) *Batch {
	candidates := make([]*Batch, 0, len(batches))
	for _, b := range batches {
		if b.Remaining().IsPositive() {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	SortFEFO(candidates)
	return candidates[0]
}

func greedy(ordered []*Batch, qty decimal.Decimal) *Allocation {
	plan := &Allocation{Total: decimal.Zero}
	need := qty
	for _, b := range ordered {
		if !need.IsPositive() {
			break
		}
		take := decimal.Min(need, b.Remaining())
		plan.Lines = append(plan.Lines, AllocationLine{Batch: b, Quantity: take})
		plan.Total = plan.Total.Add(take)
		need = need.Sub(take)
	}
	return plan
}
