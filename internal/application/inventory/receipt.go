package inventory

import (
	"context"
	"fmt"

	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReceiveBatch books a receipt into the batch ledger and the stock aggregate
func (s *Service) ReceiveBatch(ctx context.Context, actor identity.Actor, req ReceiveBatchRequest) (*BatchView, error) {
	if err := actor.Require(identity.CapabilityStockManage); err != nil {
		return nil, err
	}
	if err := validateItem(req.ItemID); err != nil {
		return nil, err
	}
	if err := inventory.ValidatePositive(req.Quantity, "Received quantity"); err != nil {
		return nil, err
	}
	if req.UnitCost.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidCost, "Unit cost cannot be negative")
	}
	policy, err := s.policyFor(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	expiry := inventory.ExpiryFromPtr(req.ExpiryDate)
	if policy.RequiresExpiry && !expiry.IsSet() {
		return nil, shared.NewDomainError(shared.CodeInvalidExpiry, "Expiry date is required for perishable items")
	}
	warehouseID, err := s.resolveWarehouse(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	var view BatchView
	fields := []zap.Field{zap.String("item_id", req.ItemID.String()), zap.String("warehouse_id", warehouseID.String())}
	err = s.mutate(ctx, OpReceiveBatch, []string{StockLockKey(req.ItemID, warehouseID)}, fields, func(u *unitOfWork) error {
		item, err := u.lockOrCreateItem(req.ItemID, warehouseID)
		if err != nil {
			return err
		}
		batch, err := inventory.NewBatch(inventory.NewBatchParams{
			ItemID:      req.ItemID,
			WarehouseID: warehouseID,
			BatchNumber: req.BatchNumber,
			Quantity:    req.Quantity,
			UnitCost:    req.UnitCost,
			Expiry:      expiry,
			Source:      inventory.BatchSourceReceipt,
			RequiresQC:  policy.RequiresQC,
			ReceivedAt:  s.now(),
		})
		if err != nil {
			return err
		}
		before := item.Available()
		if err := item.Receive(batch); err != nil {
			return err
		}
		if err := u.BatchRepo().Create(u.ctx, batch); err != nil {
			return err
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		view = ToBatchView(batch)
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    inventory.ChangeTypeReceipt,
			Quantity:      req.Quantity,
			BalanceBefore: before,
			BatchID:       uuidPtr(batch.ID),
			Unit:          policy.Unit,
			Reason:        "batch " + batch.BatchNumber + " received",
			ChangedBy:     actor.Label(),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch received",
		zap.String("batch_id", view.ID.String()),
		zap.String("item_id", view.ItemID.String()),
		zap.String("quantity", view.ReceivedQuantity.String()),
		zap.String("qc_status", string(view.QCStatus)),
	)
	return &view, nil
}

// ListBatches returns an item's batches in FEFO order
func (s *Service) ListBatches(ctx context.Context, itemID uuid.UUID, warehouseID *uuid.UUID) ([]BatchView, error) {
	if err := validateItem(itemID); err != nil {
		return nil, err
	}
	batches, err := s.reads.BatchRepo().ListByItem(ctx, itemID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	inventory.SortFEFO(batches)
	return ToBatchViews(batches), nil
}

// InspectBatch records a QC inspection result
func (s *Service) InspectBatch(ctx context.Context, actor identity.Actor, batchID uuid.UUID, result inventory.QCResult, notes string) (*BatchView, error) {
	if err := actor.Require(identity.CapabilityQCInspect); err != nil {
		return nil, err
	}
	if result != inventory.QCResultPass && result != inventory.QCResultFail {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "QC result must be pass or fail")
	}
	return s.transitionQC(ctx, actor, OpInspectBatch, batchID, inventory.ChangeTypeQCInspect, func(b *inventory.Batch) error {
		return b.Inspect(result, notes, s.now())
	})
}

// ReleaseBatch clears an inspected, passed batch for consumption
func (s *Service) ReleaseBatch(ctx context.Context, actor identity.Actor, batchID uuid.UUID) (*BatchView, error) {
	if err := actor.Require(identity.CapabilityQCRelease); err != nil {
		return nil, err
	}
	return s.transitionQC(ctx, actor, OpReleaseBatch, batchID, inventory.ChangeTypeQCRelease, func(b *inventory.Batch) error {
		return b.Release(s.now())
	})
}

// QuarantineBatch parks a pending batch
func (s *Service) QuarantineBatch(ctx context.Context, actor identity.Actor, batchID uuid.UUID, notes string) (*BatchView, error) {
	if err := actor.Require(identity.CapabilityQCInspect); err != nil {
		return nil, err
	}
	return s.transitionQC(ctx, actor, OpQuarantineBatch, batchID, inventory.ChangeTypeQCInspect, func(b *inventory.Batch) error {
		return b.Quarantine(notes, s.now())
	})
}

// transitionQC applies a QC transition under the item's lock; the QC hold of
// the aggregate is recomputed from the ledger in the same transaction
func (s *Service) transitionQC(
	ctx context.Context,
	actor identity.Actor,
	op string,
	batchID uuid.UUID,
	changeType inventory.ChangeType,
	apply func(b *inventory.Batch) error,
) (*BatchView, error) {
	if batchID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Batch ID is required")
	}
	snapshot, err := s.reads.BatchRepo().FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var view BatchView
	fields := []zap.Field{zap.String("batch_id", batchID.String()), zap.String("item_id", snapshot.ItemID.String())}
	key := StockLockKey(snapshot.ItemID, snapshot.WarehouseID)
	err = s.mutate(ctx, op, []string{key}, fields, func(u *unitOfWork) error {
		// Stock row before batches, the same order every other mutation takes.
		item, err := u.lockOrCreateItem(snapshot.ItemID, snapshot.WarehouseID)
		if err != nil {
			return err
		}
		batches, err := u.BatchRepo().ListByItemForUpdate(u.ctx, snapshot.ItemID, snapshot.WarehouseID)
		if err != nil {
			return err
		}
		batch, err := findBatch(batches, batchID)
		if err != nil {
			return err
		}
		from := batch.QC().Status()
		if err := apply(batch); err != nil {
			return err
		}
		item.RecordQCChange(batch, from, batches)
		if err := u.BatchRepo().Save(u.ctx, batch); err != nil {
			return err
		}
		if err := u.saveItem(item); err != nil {
			return err
		}
		view = ToBatchView(batch)
		reason := fmt.Sprintf("qc %s -> %s", from, batch.QC().Status())
		if r := batch.QC().Result(); r != inventory.QCResultNone {
			reason += " (" + string(r) + ")"
		}
		return u.record(inventory.NewStockHistoryEntry(item, inventory.HistoryParams{
			ChangeType:    changeType,
			Quantity:      decimal.Zero,
			BalanceBefore: item.Available(),
			BatchID:       uuidPtr(batch.ID),
			Reason:        reason,
			ChangedBy:     actor.Label(),
		}))
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}
