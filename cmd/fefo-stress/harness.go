package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errNoItems = errors.New("fefo-stress: run before seed")

// Params sizes a stress run
type Params struct {
	Items   int
	Batches int // per item
	Pool    int // units received per batch
	Workers int
	Ops     int // total reserve attempts across all workers
	Seed    uint64
}

// Summary counts the outcomes of a run
type Summary struct {
	Reserved   int64
	Rejected   int64
	Busy       int64
	Fulfilled  int64
	Released   int64
	Failed     int64
	Violations []string
	Elapsed    time.Duration
}

// Harness drives concurrent reservation flows against one service
type Harness struct {
	svc    *appinv.Service
	actor  identity.Actor
	logger *zap.Logger
	params Params

	items []uuid.UUID

	mu         sync.Mutex
	deductions [][]inventory.DeductedBatch
}

// NewHarness creates a harness over svc
func NewHarness(svc *appinv.Service, params Params, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{
		svc:    svc,
		actor:  identity.NewActor("fefo-stress", "fefo-stress", string(identity.CapabilityAll)),
		logger: logger,
		params: params,
	}
}

// Seed receives Batches released batches of Pool units for each of Items
// items. Expiries are spread over the next 60 days and may collide.
func (h *Harness) Seed(ctx context.Context) error {
	rng := rand.New(rand.NewPCG(h.params.Seed, h.params.Seed^0x9e3779b97f4a7c15))
	today := inventory.DateOf(time.Now())

	h.items = make([]uuid.UUID, 0, h.params.Items)
	for i := 0; i < h.params.Items; i++ {
		itemID := uuid.New()
		for b := 0; b < h.params.Batches; b++ {
			expiry := today.AddDate(0, 0, 1+rng.IntN(60))
			view, err := h.svc.ReceiveBatch(ctx, h.actor, appinv.ReceiveBatchRequest{
				ItemID:     itemID,
				Quantity:   decimal.NewFromInt(int64(h.params.Pool)),
				UnitCost:   decimal.NewFromInt(int64(1 + rng.IntN(20))),
				ExpiryDate: &expiry,
			})
			if err != nil {
				return fmt.Errorf("seed item %s: %w", itemID, err)
			}
			if view.QCStatus != inventory.QCStatusReleased {
				return fmt.Errorf("seed item %s: batch %s is %s, want released", itemID, view.ID, view.QCStatus)
			}
		}
		h.items = append(h.items, itemID)
	}
	h.logger.Info("Seeded stock",
		zap.Int("items", h.params.Items),
		zap.Int("batches_per_item", h.params.Batches),
		zap.Int("units_per_batch", h.params.Pool),
	)
	return nil
}

// Run executes Ops reserve attempts over Workers goroutines. A successful
// reservation is either fulfilled or released, chosen at random.
func (h *Harness) Run(ctx context.Context) (*Summary, error) {
	if len(h.items) == 0 {
		return nil, errNoItems
	}
	var sum Summary
	start := time.Now()

	ops := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < h.params.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(h.params.Seed+uint64(worker)+1, uint64(worker)))
			for range ops {
				h.flow(ctx, rng, &sum)
			}
		}(w)
	}
	for i := 0; i < h.params.Ops; i++ {
		ops <- i
	}
	close(ops)
	wg.Wait()

	sum.Elapsed = time.Since(start)
	return &sum, nil
}

func (h *Harness) flow(ctx context.Context, rng *rand.Rand, sum *Summary) {
	itemID := h.items[rng.IntN(len(h.items))]
	qty := decimal.NewFromInt(int64(1 + rng.IntN(max(1, h.params.Pool/2))))
	orderID := uuid.NewString()
	lines := []appinv.ItemQuantity{{ItemID: itemID, Quantity: qty}}

	res, err := h.svc.ReserveStock(ctx, appinv.ReserveStockRequest{OrderID: orderID, Items: lines})
	if err != nil {
		h.countError(sum, "reserve", err)
		return
	}
	if !res.OK {
		atomic.AddInt64(&sum.Rejected, 1)
		return
	}
	atomic.AddInt64(&sum.Reserved, 1)

	if rng.IntN(2) == 0 {
		released, err := h.svc.ReleaseReservedStock(ctx, appinv.ReleaseStockRequest{OrderID: orderID, Items: lines})
		if err == nil && len(released.Failed()) > 0 {
			err = released.Failed()[0].Err
		}
		if err != nil {
			h.countError(sum, "release", err)
			return
		}
		atomic.AddInt64(&sum.Released, 1)
		return
	}

	fulfilled, err := h.svc.DeductStockOnFulfillment(ctx, appinv.FulfillStockRequest{OrderID: orderID, Items: lines})
	if err != nil {
		h.countError(sum, "fulfil", err)
		return
	}
	atomic.AddInt64(&sum.Fulfilled, 1)
	h.mu.Lock()
	for _, line := range fulfilled.Items {
		h.deductions = append(h.deductions, line.Batches)
	}
	h.mu.Unlock()
}

func (h *Harness) countError(sum *Summary, step string, err error) {
	if shared.IsTransient(err) {
		atomic.AddInt64(&sum.Busy, 1)
		return
	}
	atomic.AddInt64(&sum.Failed, 1)
	h.logger.Warn("Stress flow failed",
		zap.String("step", step),
		zap.String("code", shared.ErrorCode(err)),
		zap.Error(err),
	)
}

// Check verifies the batch ledger, the stock aggregate and FEFO order after
// a run. It returns one message per violation.
func (h *Harness) Check(ctx context.Context) ([]string, error) {
	var violations []string
	var errs error
	byID := make(map[uuid.UUID]appinv.BatchView)

	for _, itemID := range h.items {
		batches, err := h.svc.ListBatches(ctx, itemID, nil)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		stock, err := h.svc.GetStock(ctx, itemID, nil)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if stock == nil {
			errs = multierr.Append(errs, fmt.Errorf("item %s has no stock row", itemID))
			continue
		}
		violations = append(violations, checkLedger(itemID, batches, stock)...)
		violations = append(violations, checkFEFO(itemID, batches)...)
		for _, b := range batches {
			byID[b.ID] = b
		}
	}

	h.mu.Lock()
	for _, d := range h.deductions {
		violations = append(violations, checkDeductionOrder(d, byID)...)
	}
	h.mu.Unlock()

	return violations, errs
}

func checkLedger(itemID uuid.UUID, batches []appinv.BatchView, stock *appinv.StockView) []string {
	var out []string
	sumRemaining := decimal.Zero
	for _, b := range batches {
		used := b.ConsumedQuantity.Add(b.TransferredQuantity).Add(b.WrittenOffQuantity)
		if used.GreaterThan(b.ReceivedQuantity) {
			out = append(out, fmt.Sprintf("batch %s: used %s exceeds received %s", b.ID, used, b.ReceivedQuantity))
		}
		if b.RemainingQuantity.IsNegative() {
			out = append(out, fmt.Sprintf("batch %s: remaining %s is negative", b.ID, b.RemainingQuantity))
		}
		if !b.RemainingQuantity.Equal(b.ReceivedQuantity.Sub(used)) {
			out = append(out, fmt.Sprintf("batch %s: remaining %s != received %s - used %s",
				b.ID, b.RemainingQuantity, b.ReceivedQuantity, used))
		}
		sumRemaining = sumRemaining.Add(b.RemainingQuantity)
	}
	if stock.ReservedQuantity.IsNegative() {
		out = append(out, fmt.Sprintf("item %s: reserved %s is negative", itemID, stock.ReservedQuantity))
	}
	if stock.ReservedQuantity.GreaterThan(stock.AvailableQuantity) {
		out = append(out, fmt.Sprintf("item %s: reserved %s exceeds available %s",
			itemID, stock.ReservedQuantity, stock.AvailableQuantity))
	}
	if !stock.AvailableQuantity.Equal(sumRemaining) {
		out = append(out, fmt.Sprintf("item %s: available %s != batch remaining %s",
			itemID, stock.AvailableQuantity, sumRemaining))
	}
	return out
}

// checkFEFO holds for runs without transfers or write-offs: a batch that
// still has stock means no batch expiring strictly later was consumed.
func checkFEFO(itemID uuid.UUID, batches []appinv.BatchView) []string {
	var out []string
	for _, open := range batches {
		if !open.RemainingQuantity.IsPositive() || open.QCStatus != inventory.QCStatusReleased {
			continue
		}
		for _, later := range batches {
			if open.ExpiryDate.Compare(later.ExpiryDate) < 0 && later.ConsumedQuantity.IsPositive() {
				out = append(out, fmt.Sprintf("item %s: batch %s consumed while earlier batch %s has %s left",
					itemID, later.ID, open.ID, open.RemainingQuantity))
			}
		}
	}
	return out
}

// checkDeductionOrder verifies that one deduction drew batches in
// non-decreasing expiry order
func checkDeductionOrder(deducted []inventory.DeductedBatch, byID map[uuid.UUID]appinv.BatchView) []string {
	var out []string
	for i := 1; i < len(deducted); i++ {
		prev, okPrev := byID[deducted[i-1].BatchID]
		cur, okCur := byID[deducted[i].BatchID]
		if !okPrev || !okCur {
			out = append(out, fmt.Sprintf("deduction references unknown batch %s", deducted[i].BatchID))
			continue
		}
		if prev.ExpiryDate.Compare(cur.ExpiryDate) > 0 {
			out = append(out, fmt.Sprintf("deduction drew batch %s before earlier-expiring batch %s", prev.ID, cur.ID))
		}
	}
	return out
}
