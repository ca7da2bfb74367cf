package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// errReservationRejected rolls back a reservation batch with failing items
var errReservationRejected = shared.NewDomainError(shared.CodeInsufficientAvailableStock, "Reservation rejected")

// ReserveStock reserves every line for one order, all or nothing. Items are
// locked in ascending item order. A shortfall on any item rolls back the
// whole batch and is reported as a soft result with OK=false; validation and
// infrastructure failures are returned as errors.
func (s *Service) ReserveStock(ctx context.Context, req ReserveStockRequest) (*ReservationResult, error) {
	lines, err := normalizeLines(req.Items)
	if err != nil {
		return nil, err
	}
	orderID := strings.TrimSpace(req.OrderID)
	warehouseID, err := s.resolveWarehouse(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	result := &ReservationResult{OrderID: orderID, WarehouseID: warehouseID}
	fields := []zap.Field{zap.String("order_id", orderID), zap.String("warehouse_id", warehouseID.String()), zap.Int("items", len(lines))}
	err = s.mutate(ctx, OpReserveStock, lineKeys(lines, warehouseID), fields, func(u *unitOfWork) error {
		result.Items, result.Failures = nil, nil
		reserved := make([]*inventory.StockItem, 0, len(lines))
		for _, line := range lines {
			item, err := u.lockItem(line.ItemID, warehouseID)
			if errors.Is(err, shared.ErrNotFound) {
				result.Failures = append(result.Failures, ReservationFailure{
					ItemID:    line.ItemID,
					Requested: line.Quantity,
					Sellable:  decimal.Zero,
					Code:      shared.CodeInsufficientAvailableStock,
				})
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Reserve(line.Quantity, orderID); err != nil {
				if shared.ErrorCode(err) != shared.CodeInsufficientAvailableStock {
					return err
				}
				result.Failures = append(result.Failures, ReservationFailure{
					ItemID:    line.ItemID,
					Requested: line.Quantity,
					Sellable:  item.Sellable(),
					Code:      shared.CodeInsufficientAvailableStock,
				})
				continue
			}
			reserved = append(reserved, item)
		}
		// nothing is written unless every line fits
		if len(result.Failures) > 0 {
			return errReservationRejected
		}
		for i, item := range reserved {
			if err := s.applyReservation(u, item, lines[i], orderID); err != nil {
				return err
			}
			result.Items = append(result.Items, ReservedLine{
				ItemID:   lines[i].ItemID,
				Quantity: lines[i].Quantity,
				Reserved: item.Reserved(),
			})
		}
		return nil
	})
	if errors.Is(err, errReservationRejected) {
		result.OK = false
		result.Items = nil
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.OK = true
	return result, nil
}

func (s *Service) applyReservation(u *unitOfWork, item *inventory.StockItem, line ItemQuantity, orderID string) error {
	if orderID != "" {
		expiresAt := s.reservationDeadline()
		r, err := u.ReservationRepo().FindActive(u.ctx, orderID, item.ItemID, item.WarehouseID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			r, err = inventory.NewReservation(orderID, item.ItemID, item.WarehouseID, line.Quantity, expiresAt)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			r.Add(line.Quantity, expiresAt)
		}
		if err := u.ReservationRepo().Save(u.ctx, r); err != nil {
			return err
		}
	}
	if err := u.saveItem(item); err != nil {
		return err
	}
	return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
		ChangeType:    inventory.ChangeTypeReserve,
		Quantity:      line.Quantity,
		BalanceBefore: item.Available(),
		OrderID:       orderID,
		ChangedBy:     orderLabel(orderID),
	}))
}

// ReleaseReservedStock returns reserved quantity to sellable. Each item is
// released in its own transaction so that one failure does not block the
// others; the typed result tells the caller which lines to retry and the
// returned error combines every line failure.
//
// With an order ID at most the order's outstanding reservation is released,
// which makes repeated compensation calls safe. Without one, up to qty of the
// item's reserved quantity is released.
func (s *Service) ReleaseReservedStock(ctx context.Context, req ReleaseStockRequest) (*ReleaseResult, error) {
	lines, err := normalizeLines(req.Items)
	if err != nil {
		return nil, err
	}
	orderID := strings.TrimSpace(req.OrderID)
	warehouseID, err := s.resolveWarehouse(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	result := &ReleaseResult{OrderID: orderID, WarehouseID: warehouseID}
	var errs error
	for _, line := range lines {
		released, err := s.releaseLine(ctx, line, orderID, warehouseID)
		result.Items = append(result.Items, ReleaseLine{
			ItemID:    line.ItemID,
			Requested: line.Quantity,
			Released:  released,
			Err:       err,
		})
		errs = multierr.Append(errs, err)
	}
	return result, errs
}

func (s *Service) releaseLine(ctx context.Context, line ItemQuantity, orderID string, warehouseID uuid.UUID) (decimal.Decimal, error) {
	released := decimal.Zero
	fields := []zap.Field{zap.String("order_id", orderID), zap.String("item_id", line.ItemID.String()), zap.String("warehouse_id", warehouseID.String())}
	err := s.mutate(ctx, OpReleaseStock, []string{StockLockKey(line.ItemID, warehouseID)}, fields, func(u *unitOfWork) error {
		released = decimal.Zero
		item, err := u.lockItem(line.ItemID, warehouseID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		qty := line.Quantity
		if orderID != "" {
			r, err := u.ReservationRepo().FindActive(u.ctx, orderID, line.ItemID, warehouseID)
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			qty = r.Release(qty)
			if err := u.ReservationRepo().Save(u.ctx, r); err != nil {
				return err
			}
		}
		if !qty.IsPositive() {
			return nil
		}
		released, err = item.Release(qty, orderID)
		if err != nil {
			return err
		}
		if !released.IsPositive() {
			return nil
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeRelease,
			Quantity:      released.Neg(),
			BalanceBefore: item.Available(),
			OrderID:       orderID,
			ChangedBy:     orderLabel(orderID),
		}))
	})
	if err != nil {
		return decimal.Zero, err
	}
	return released, nil
}

// DeductStockOnFulfillment permanently consumes stock for a fulfilled order.
// Every item is allocated FEFO over QC-released batches and all items commit
// in one transaction; any failure leaves every batch and aggregate untouched.
func (s *Service) DeductStockOnFulfillment(ctx context.Context, req FulfillStockRequest) (*FulfillmentResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Order ID is required for fulfilment")
	}
	lines, err := normalizeLines(req.Items)
	if err != nil {
		return nil, err
	}
	warehouseID, err := s.resolveWarehouse(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	result := &FulfillmentResult{OrderID: orderID, WarehouseID: warehouseID}
	fields := []zap.Field{zap.String("order_id", orderID), zap.String("warehouse_id", warehouseID.String()), zap.Int("items", len(lines))}
	err = s.mutate(ctx, OpDeductStock, lineKeys(lines, warehouseID), fields, func(u *unitOfWork) error {
		result.Items = nil
		for _, line := range lines {
			fulfilled, err := s.deductLine(u, line, orderID, warehouseID)
			if err != nil {
				return err
			}
			result.Items = append(result.Items, *fulfilled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) deductLine(u *unitOfWork, line ItemQuantity, orderID string, warehouseID uuid.UUID) (*FulfilledLine, error) {
	item, err := u.lockItem(line.ItemID, warehouseID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, inventory.ErrInsufficientReleasedStock(line.Quantity, decimal.Zero).
			WithDetail("item_id", line.ItemID.String())
	}
	if err != nil {
		return nil, err
	}
	batches, err := u.BatchRepo().ListByItemForUpdate(u.ctx, line.ItemID, warehouseID)
	if err != nil {
		return nil, err
	}
	res, err := u.ReservationRepo().FindActive(u.ctx, orderID, line.ItemID, warehouseID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	reservedPortion := decimal.Zero
	if res != nil {
		// Wastage can shrink the aggregate's reserved below the order's outstanding.
		reservedPortion = decimal.Min(res.Outstanding, line.Quantity, item.Reserved())
	}

	plan, err := inventory.AllocateFEFO(batches, line.Quantity)
	if err != nil {
		return nil, withItem(err, line.ItemID)
	}
	before := item.Available()
	if err := item.Deduct(line.Quantity, reservedPortion, orderID, plan.DeductedBatches()); err != nil {
		return nil, withItem(err, line.ItemID)
	}
	if err := plan.Consume(); err != nil {
		return nil, err
	}
	if err := u.BatchRepo().SaveAll(u.ctx, plan.Batches()); err != nil {
		return nil, err
	}
	if res != nil && reservedPortion.IsPositive() {
		res.Fulfill(reservedPortion)
		if err := u.ReservationRepo().Save(u.ctx, res); err != nil {
			return nil, err
		}
	}
	if err := u.saveItem(item); err != nil {
		return nil, err
	}

	entries := make([]*inventory.StockHistoryEntry, 0, len(plan.Lines))
	running := before
	for _, l := range plan.Lines {
		entry := inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeDeduct,
			Quantity:      l.Quantity.Neg(),
			BalanceBefore: running,
			BatchID:       uuidPtr(l.Batch.ID),
			OrderID:       orderID,
			ChangedBy:     orderLabel(orderID),
		})
		running = running.Sub(l.Quantity)
		entry.BalanceAfter = running
		entries = append(entries, entry)
	}
	if err := u.record(entries...); err != nil {
		return nil, err
	}
	return &FulfilledLine{
		ItemID:          line.ItemID,
		Quantity:        line.Quantity,
		ReservedPortion: reservedPortion,
		Batches:         plan.DeductedBatches(),
	}, nil
}

// TransferStock moves QC-released stock between warehouses. The source is
// drawn FEFO; the destination receives mirrored, released batches with the
// same expiry and cost.
func (s *Service) TransferStock(ctx context.Context, actor identity.Actor, req TransferStockRequest) (*TransferResult, error) {
	if err := actor.Require(identity.CapabilityStockManage); err != nil {
		return nil, err
	}
	if err := validateItem(req.ItemID); err != nil {
		return nil, err
	}
	if err := inventory.ValidatePositive(req.Quantity, "Transfer quantity"); err != nil {
		return nil, err
	}
	if req.FromWarehouseID == uuid.Nil || req.ToWarehouseID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Source and destination warehouses are required")
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Source and destination warehouses must differ")
	}
	if _, err := s.reads.WarehouseRepo().FindByID(ctx, req.ToWarehouseID); err != nil {
		return nil, err
	}

	result := &TransferResult{ItemID: req.ItemID}
	keys := []string{StockLockKey(req.ItemID, req.FromWarehouseID), StockLockKey(req.ItemID, req.ToWarehouseID)}
	fields := []zap.Field{
		zap.String("item_id", req.ItemID.String()),
		zap.String("from_warehouse_id", req.FromWarehouseID.String()),
		zap.String("to_warehouse_id", req.ToWarehouseID.String()),
	}
	err := s.mutate(ctx, OpTransferStock, keys, fields, func(u *unitOfWork) error {
		// row locks follow the same order as the key locks
		first, second := req.FromWarehouseID, req.ToWarehouseID
		if keys[1] < keys[0] {
			first, second = second, first
		}
		locked := make(map[uuid.UUID]*inventory.StockItem, 2)
		for _, wh := range []uuid.UUID{first, second} {
			item, err := u.lockOrCreateItem(req.ItemID, wh)
			if err != nil {
				return err
			}
			locked[wh] = item
		}
		src, dst := locked[req.FromWarehouseID], locked[req.ToWarehouseID]

		batches, err := u.BatchRepo().ListByItemForUpdate(u.ctx, req.ItemID, req.FromWarehouseID)
		if err != nil {
			return err
		}
		plan, err := inventory.AllocateFEFO(batches, req.Quantity)
		if err != nil {
			return err
		}
		srcBefore, dstBefore := src.Available(), dst.Available()
		if err := src.TransferOut(req.Quantity, req.ToWarehouseID); err != nil {
			return err
		}
		if err := plan.Transfer(); err != nil {
			return err
		}
		if err := u.BatchRepo().SaveAll(u.ctx, plan.Batches()); err != nil {
			return err
		}

		var entries []*inventory.StockHistoryEntry
		for _, l := range plan.Lines {
			mirror, err := inventory.NewBatch(inventory.NewBatchParams{
				ItemID:      req.ItemID,
				WarehouseID: req.ToWarehouseID,
				BatchNumber: l.Batch.BatchNumber,
				Quantity:    l.Quantity,
				UnitCost:    l.Batch.UnitCost,
				Expiry:      l.Batch.Expiry,
				Source:      inventory.BatchSourceTransfer,
				ReceivedAt:  l.Batch.ReceivedAt,
			})
			if err != nil {
				return err
			}
			if err := dst.Receive(mirror); err != nil {
				return err
			}
			if err := u.BatchRepo().Create(u.ctx, mirror); err != nil {
				return err
			}
			out := inventory.NewStockHistoryEntry(src, inventory.HistoryParams{
				ChangeType:    inventory.ChangeTypeTransferOut,
				Quantity:      l.Quantity.Neg(),
				BalanceBefore: srcBefore,
				BatchID:       uuidPtr(l.Batch.ID),
				Reason:        "to warehouse " + req.ToWarehouseID.String(),
				ChangedBy:     actor.Label(),
			})
			out.BalanceAfter = srcBefore.Sub(l.Quantity)
			in := inventory.NewStockHistoryEntry(dst, inventory.HistoryParams{
				ChangeType:    inventory.ChangeTypeTransferIn,
				Quantity:      l.Quantity,
				BalanceBefore: dstBefore,
				BatchID:       uuidPtr(mirror.ID),
				Reason:        "from warehouse " + req.FromWarehouseID.String(),
				ChangedBy:     actor.Label(),
			})
			entries = append(entries, out, in)
			srcBefore = srcBefore.Sub(l.Quantity)
			dstBefore = dstBefore.Add(l.Quantity)
		}
		for _, wh := range []uuid.UUID{first, second} {
			if err := u.saveItem(locked[wh]); err != nil {
				return err
			}
		}
		result.From = ToStockView(src)
		result.To = ToStockView(dst)
		result.Batches = plan.DeductedBatches()
		return u.record(entries...)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func withItem(err error, itemID uuid.UUID) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.WithDetail("item_id", itemID.String())
	}
	return err
}
