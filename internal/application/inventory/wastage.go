package inventory

import (
	"context"
	"fmt"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordWastage writes off spoiled, damaged or lost stock from one batch.
// Reserved is clamped to the remaining available quantity; the clamp is
// reported on the view and noted in the history entry.
func (s *Service) RecordWastage(ctx context.Context, actor identity.Actor, req RecordWastageRequest) (*WastageView, error) {
	if err := actor.Require(identity.CapabilityStockManage); err != nil {
		return nil, err
	}
	if err := inventory.ValidatePositive(req.Quantity, "Wastage quantity"); err != nil {
		return nil, err
	}
	if err := inventory.ValidateWastageReason(req.Reason); err != nil {
		return nil, err
	}
	if err := validateItem(req.ItemID); err != nil {
		return nil, err
	}
	policy, err := s.policyFor(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	unit := req.Unit
	if unit == "" {
		unit = policy.Unit
	}
	qty, err := valueobject.NewQuantity(req.Quantity, unit)
	if err != nil {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, err.Error())
	}

	warehouseID := uuid.Nil
	if req.WarehouseID == nil && req.BatchID != nil {
		// an explicit batch determines its own warehouse
		b, err := s.reads.BatchRepo().FindByID(ctx, *req.BatchID)
		if err != nil {
			return nil, err
		}
		if b.ItemID != req.ItemID {
			return nil, shared.NewDomainError(shared.CodeInvalidInput, "Batch does not belong to the item")
		}
		warehouseID = b.WarehouseID
	} else if warehouseID, err = s.resolveWarehouse(ctx, req.WarehouseID); err != nil {
		return nil, err
	}

	var view WastageView
	fields := []zap.Field{zap.String("item_id", req.ItemID.String()), zap.String("warehouse_id", warehouseID.String())}
	err = s.mutate(ctx, OpRecordWastage, []string{StockLockKey(req.ItemID, warehouseID)}, fields, func(u *unitOfWork) error {
		item, err := u.lockItem(req.ItemID, warehouseID)
		if err != nil {
			return err
		}
		batches, err := u.BatchRepo().ListByItemForUpdate(u.ctx, req.ItemID, warehouseID)
		if err != nil {
			return err
		}
		var target *inventory.Batch
		if req.BatchID != nil {
			if target, err = findBatch(batches, *req.BatchID); err != nil {
				return err
			}
		} else if target = inventory.SelectWastageBatch(batches); target == nil {
			return shared.NewDomainError(shared.CodeOverConsumption, "No batch with remaining stock to write off")
		}

		wasHeld := !target.IsReleased()
		if err := target.WriteOff(req.Quantity); err != nil {
			return err
		}
		event, err := inventory.NewWastageEvent(target, qty, req.Reason, actor.Label())
		if err != nil {
			return err
		}
		before := item.Available()
		clamped := item.WriteOff(target, req.Quantity, unit, event.Reason, wasHeld)
		item.RefreshQCHold(batches)

		if err := u.BatchRepo().Save(u.ctx, target); err != nil {
			return err
		}
		if err := u.WastageRepo().Append(u.ctx, event); err != nil {
			return err
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		reason := event.Reason
		if clamped.IsPositive() {
			reason = fmt.Sprintf("%s; reserved clamped by %s", reason, clamped)
		}
		view = ToWastageView(event)
		view.ReservedClampedBy = clamped
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeWastage,
			Quantity:      req.Quantity.Neg(),
			BalanceBefore: before,
			BatchID:       uuidPtr(target.ID),
			Unit:          unit,
			Reason:        reason,
			ChangedBy:     actor.Label(),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("wastage recorded",
		zap.String("item_id", view.ItemID.String()),
		zap.String("batch_id", view.BatchID.String()),
		zap.String("quantity", view.Quantity.String()),
		zap.String("reason", view.Reason),
	)
	return &view, nil
}

// ListWastage returns an item's wastage events, newest first
func (s *Service) ListWastage(ctx context.Context, itemID uuid.UUID, filter shared.Filter) (*WastagePage, error) {
	if err := validateItem(itemID); err != nil {
		return nil, err
	}
	filter = filter.Normalize()
	events, total, err := s.reads.WastageRepo().ListByItem(ctx, itemID, filter)
	if err != nil {
		return nil, fmt.Errorf("list wastage: %w", err)
	}
	views := make([]WastageView, len(events))
	for i := range events {
		views[i] = ToWastageView(&events[i])
	}
	page := shared.NewPaginated(views, total, filter.Page, filter.PageSize)
	return &page, nil
}

// ListHistory returns an item's stock history, newest first
func (s *Service) ListHistory(ctx context.Context, itemID uuid.UUID, filter shared.Filter) (*HistoryPage, error) {
	if err := validateItem(itemID); err != nil {
		return nil, err
	}
	filter = filter.Normalize()
	entries, total, err := s.reads.HistoryRepo().ListByItem(ctx, itemID, filter)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	views := make([]HistoryView, len(entries))
	for i, e := range entries {
		views[i] = ToHistoryView(e)
	}
	page := shared.NewPaginated(views, total, filter.Page, filter.PageSize)
	return &page, nil
}
