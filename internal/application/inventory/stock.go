package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetStock returns the stock row of an item in a warehouse, or the item's
// totals across warehouses when warehouseID is nil. It returns nil when the
// item has no stock row.
func (s *Service) GetStock(ctx context.Context, itemID uuid.UUID, warehouseID *uuid.UUID) (*StockView, error) {
	if err := validateItem(itemID); err != nil {
		return nil, err
	}
	if warehouseID != nil {
		item, err := s.reads.StockRepo().FindByItemAndWarehouse(ctx, itemID, *warehouseID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("find stock: %w", err)
		}
		view := ToStockView(item)
		return &view, nil
	}
	items, err := s.reads.StockRepo().FindByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("find stock: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	view := sumStockViews(itemID, items)
	return &view, nil
}

// GetStockByItemID returns an item's totals across warehouses
func (s *Service) GetStockByItemID(ctx context.Context, itemID uuid.UUID) (*StockView, error) {
	return s.GetStock(ctx, itemID, nil)
}

// CheckAvailability reports whether qty can currently be reserved in the
// resolved warehouse
func (s *Service) CheckAvailability(ctx context.Context, itemID uuid.UUID, qty decimal.Decimal, warehouseID *uuid.UUID) (bool, error) {
	if err := validateItem(itemID); err != nil {
		return false, err
	}
	if err := inventory.ValidatePositive(qty, "Quantity"); err != nil {
		return false, err
	}
	resolved, err := s.resolveWarehouse(ctx, warehouseID)
	if err != nil {
		return false, err
	}
	view, err := s.GetStock(ctx, itemID, &resolved)
	if err != nil || view == nil {
		return false, err
	}
	return view.SellableQuantity.GreaterThanOrEqual(qty), nil
}

// UpdateStock sets an item's available quantity to an absolute value. The
// batch ledger is brought along: a decrease writes off from the given batch
// (or FEFO over every batch with stock), an increase books an adjustment batch.
func (s *Service) UpdateStock(ctx context.Context, actor identity.Actor, req UpdateStockRequest) (*StockView, error) {
	if err := actor.Require(identity.CapabilityStockManage); err != nil {
		return nil, err
	}
	if err := validateItem(req.ItemID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidReason, "Adjustment reason is required")
	}
	if req.Quantity.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Adjusted quantity cannot be negative")
	}
	policy, err := s.policyFor(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	unit := req.Unit
	if unit == "" {
		unit = policy.Unit
	}
	warehouseID, err := s.resolveWarehouse(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	var view StockView
	fields := []zap.Field{zap.String("item_id", req.ItemID.String()), zap.String("warehouse_id", warehouseID.String())}
	err = s.mutate(ctx, OpUpdateStock, []string{StockLockKey(req.ItemID, warehouseID)}, fields, func(u *unitOfWork) error {
		item, err := u.lockOrCreateItem(req.ItemID, warehouseID)
		if err != nil {
			return err
		}
		batches, err := u.BatchRepo().ListByItemForUpdate(u.ctx, req.ItemID, warehouseID)
		if err != nil {
			return err
		}
		before := item.Available()
		avgCost := item.AvgCost()
		delta, err := item.Adjust(req.Quantity, req.Reason)
		if err != nil {
			return err
		}

		var batchID *uuid.UUID
		switch {
		case delta.IsNegative():
			touched, err := s.writeDownLedger(batches, delta.Neg(), req.BatchID, fields)
			if err != nil {
				return err
			}
			if err := u.BatchRepo().SaveAll(u.ctx, touched); err != nil {
				return err
			}
			if len(touched) == 1 {
				batchID = uuidPtr(touched[0].ID)
			}
		case delta.IsPositive():
			batch, err := s.adjustmentBatch(item, batches, delta, avgCost, req.BatchID, policy)
			if err != nil {
				return err
			}
			if err := u.BatchRepo().Create(u.ctx, batch); err != nil {
				return err
			}
			batches = append(batches, batch)
			batchID = uuidPtr(batch.ID)
		}
		item.RefreshQCHold(batches)

		if err := u.saveItem(item); err != nil {
			return err
		}
		view = ToStockView(item)
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeAdjust,
			Quantity:      delta,
			BalanceBefore: before,
			BatchID:       batchID,
			Unit:          unit,
			Reason:        strings.TrimSpace(req.Reason),
			ChangedBy:     actor.Label(),
		}))
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// writeDownLedger removes qty from the ledger for a downward adjustment
func (s *Service) writeDownLedger(batches []*inventory.Batch, qty decimal.Decimal, batchID *uuid.UUID, fields []zap.Field) ([]*inventory.Batch, error) {
	if batchID != nil {
		b, err := findBatch(batches, *batchID)
		if err != nil {
			return nil, err
		}
		if err := b.WriteOff(qty); err != nil {
			return nil, err
		}
		return []*inventory.Batch{b}, nil
	}
	plan, shortfall := inventory.AllocateWriteOff(batches, qty)
	if shortfall.IsPositive() {
		s.logger.Warn("aggregate held more than the batch ledger; run reconcile",
			append(fields, zap.String("uncovered", shortfall.String()))...)
	}
	if err := plan.WriteOff(); err != nil {
		return nil, err
	}
	return plan.Batches(), nil
}

// adjustmentBatch books an upward adjustment. With a template batch the new
// batch inherits its expiry, cost and QC gate; otherwise it is released, has
// no expiry and is valued at the current average cost.
// adjustmentBatch books a positive adjustment. Without a template the batch
// follows the item policy: QC-required items start pending, and perishable
// items must name a template to inherit an expiry from.
func (s *Service) adjustmentBatch(item *inventory.StockItem, batches []*inventory.Batch, qty, avgCost decimal.Decimal, templateID *uuid.UUID, policy inventory.ItemPolicy) (*inventory.Batch, error) {
	params := inventory.NewBatchParams{
		ItemID:      item.ItemID,
		WarehouseID: item.WarehouseID,
		Quantity:    qty,
		UnitCost:    avgCost,
		Expiry:      inventory.NoExpiry(),
		RequiresQC:  policy.RequiresQC,
		Source:      inventory.BatchSourceAdjustment,
		ReceivedAt:  s.now(),
	}
	if templateID == nil {
		if policy.RequiresExpiry {
			return nil, shared.NewDomainError(shared.CodeInvalidExpiry,
				"Upward adjustment of a perishable item needs a template batch_id to carry the expiry")
		}
		return inventory.NewBatch(params)
	}
	tmpl, err := findBatch(batches, *templateID)
	if err != nil {
		return nil, err
	}
	params.UnitCost = tmpl.UnitCost
	params.Expiry = tmpl.Expiry
	params.RequiresQC = !tmpl.IsReleased()
	return inventory.NewBatch(params)
}

// SetLowStockThreshold configures the low-stock alert threshold
func (s *Service) SetLowStockThreshold(ctx context.Context, actor identity.Actor, itemID uuid.UUID, warehouseID *uuid.UUID, threshold decimal.Decimal) (*StockView, error) {
	if err := actor.Require(identity.CapabilityStockManage); err != nil {
		return nil, err
	}
	if err := validateItem(itemID); err != nil {
		return nil, err
	}
	if threshold.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Low stock threshold cannot be negative")
	}
	resolved, err := s.resolveWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	var view StockView
	fields := []zap.Field{zap.String("item_id", itemID.String()), zap.String("warehouse_id", resolved.String())}
	err = s.mutate(ctx, OpSetThreshold, []string{StockLockKey(itemID, resolved)}, fields, func(u *unitOfWork) error {
		item, err := u.lockOrCreateItem(itemID, resolved)
		if err != nil {
			return err
		}
		if err := item.SetLowStockThreshold(threshold); err != nil {
			return err
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		view = ToStockView(item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Reconcile recomputes the aggregate from the batch ledger and persists any
// correction
func (s *Service) Reconcile(ctx context.Context, actor identity.Actor, itemID uuid.UUID, warehouseID *uuid.UUID) (*ReconcileReport, error) {
	if err := actor.Require(identity.CapabilityStockManage); err != nil {
		return nil, err
	}
	if err := validateItem(itemID); err != nil {
		return nil, err
	}
	resolved, err := s.resolveWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{ItemID: itemID, WarehouseID: resolved}
	fields := []zap.Field{zap.String("item_id", itemID.String()), zap.String("warehouse_id", resolved.String())}
	err = s.mutate(ctx, OpReconcile, []string{StockLockKey(itemID, resolved)}, fields, func(u *unitOfWork) error {
		item, err := u.lockItem(itemID, resolved)
		if err != nil {
			return err
		}
		batches, err := u.BatchRepo().ListByItemForUpdate(u.ctx, itemID, resolved)
		if err != nil {
			return err
		}
		res := item.Reconcile(batches)
		report.ReconcileResult = res
		report.Drift = res.HasDrift()
		if !report.Drift {
			return nil
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeReconcile,
			Quantity:      res.AvailableAfter.Sub(res.AvailableBefore),
			BalanceBefore: res.AvailableBefore,
			Reason: fmt.Sprintf("reconcile: qc hold %s -> %s, reserved %s -> %s",
				res.QCHoldBefore, res.QCHoldAfter, res.ReservedBefore, res.ReservedAfter),
			ChangedBy: actor.Label(),
		}))
	})
	if err != nil {
		return nil, err
	}
	if report.Drift {
		s.logger.Warn("stock drift corrected", append(fields,
			zap.String("available_before", report.AvailableBefore.String()),
			zap.String("available_after", report.AvailableAfter.String()),
		)...)
	}
	return report, nil
}
