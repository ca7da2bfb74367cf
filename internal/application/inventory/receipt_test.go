package inventory_test

import (
	"context"
	"testing"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ReceiveBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("weighted average cost over on-hand stock", func(t *testing.T) {
		f := newFixture(t)
		itemID := uuid.New()
		f.withoutQC(t, itemID)

		f.receive(t, itemID, 10, 2, nil)
		f.receive(t, itemID, 10, 4, day(30))

		s := f.stock(t, itemID)
		assert.True(t, s.AvailableQuantity.Equal(dec(20)))
		assert.True(t, s.AvgCost.Equal(dec(3)), "avg cost %s", s.AvgCost)
		assert.True(t, s.QCHoldQuantity.IsZero())
		assert.True(t, s.TotalValue.Equal(dec(60)))

		batches := f.batches(t, itemID)
		require.Len(t, batches, 2)
		// FEFO: dated batch first, undated last
		assert.True(t, batches[0].ExpiryDate.IsSet())
		assert.False(t, batches[1].ExpiryDate.IsSet())
		assert.Equal(t, inventory.QCStatusReleased, batches[0].QCStatus)

		assert.Contains(t, f.publisher.types(), inventory.EventTypeBatchReceived)
	})

	t.Run("items requiring QC start pending and held", func(t *testing.T) {
		f := newFixture(t)
		itemID := uuid.New()

		view := f.receive(t, itemID, 8, 1, day(5))
		assert.Equal(t, inventory.QCStatusPending, view.QCStatus)

		s := f.stock(t, itemID)
		assert.True(t, s.AvailableQuantity.Equal(dec(8)))
		assert.True(t, s.QCHoldQuantity.Equal(dec(8)))
	})

	t.Run("perishable item requires an expiry", func(t *testing.T) {
		f := newFixture(t)
		itemID := uuid.New()
		require.NoError(t, f.repos.Policies.Save(ctx, &inventory.ItemPolicy{ItemID: itemID, RequiresExpiry: true}))

		_, err := f.svc.ReceiveBatch(ctx, manager, appinv.ReceiveBatchRequest{ItemID: itemID, Quantity: dec(1)})
		assert.Equal(t, shared.CodeInvalidExpiry, shared.ErrorCode(err))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newFixture(t)
		itemID := uuid.New()

		_, err := f.svc.ReceiveBatch(ctx, manager, appinv.ReceiveBatchRequest{ItemID: itemID, Quantity: decimal.Zero})
		assert.Equal(t, shared.CodeInvalidQuantity, shared.ErrorCode(err))

		_, err = f.svc.ReceiveBatch(ctx, manager, appinv.ReceiveBatchRequest{ItemID: itemID, Quantity: dec(1), UnitCost: dec(-1)})
		assert.Equal(t, shared.CodeInvalidCost, shared.ErrorCode(err))

		_, err = f.svc.ReceiveBatch(ctx, manager, appinv.ReceiveBatchRequest{Quantity: dec(1)})
		assert.Equal(t, shared.CodeInvalidItem, shared.ErrorCode(err))

		_, err = f.svc.ReceiveBatch(ctx, clerk, appinv.ReceiveBatchRequest{ItemID: itemID, Quantity: dec(1)})
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("no default warehouse", func(t *testing.T) {
		f := newFixture(t)
		f.warehouse.IsActive = false
		require.NoError(t, f.repos.Warehouses.Save(ctx, f.warehouse))

		_, err := f.svc.ReceiveBatch(ctx, manager, appinv.ReceiveBatchRequest{ItemID: uuid.New(), Quantity: dec(1)})
		assert.Equal(t, shared.CodeNoDefaultWarehouse, shared.ErrorCode(err))

		other := uuid.New()
		view, err := f.svc.ReceiveBatch(ctx, manager, appinv.ReceiveBatchRequest{ItemID: uuid.New(), WarehouseID: &other, Quantity: dec(1)})
		require.NoError(t, err)
		assert.Equal(t, other, view.WarehouseID)
	})
}

func TestService_QCWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := uuid.New()
	orderID := "SO-QC"

	pending := f.receive(t, itemID, 5, 1, day(10))

	t.Run("pending stock cannot be deducted", func(t *testing.T) {
		_, err := f.svc.DeductStockOnFulfillment(ctx, appinv.FulfillStockRequest{
			OrderID: orderID,
			Items:   []appinv.ItemQuantity{line(itemID, 1)},
		})
		assert.Equal(t, shared.CodeInsufficientReleasedStock, shared.ErrorCode(err))
	})

	t.Run("release before inspection is an invalid transition", func(t *testing.T) {
		_, err := f.svc.ReleaseBatch(ctx, manager, pending.ID)
		assert.Equal(t, shared.CodeInvalidTransition, shared.ErrorCode(err))
	})

	t.Run("capabilities are enforced", func(t *testing.T) {
		_, err := f.svc.InspectBatch(ctx, clerk, pending.ID, inventory.QCResultPass, "")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("quarantine then inspect then release", func(t *testing.T) {
		view, err := f.svc.QuarantineBatch(ctx, inspector, pending.ID, "smell check")
		require.NoError(t, err)
		assert.Equal(t, inventory.QCStatusQuarantined, view.QCStatus)

		view, err = f.svc.InspectBatch(ctx, inspector, pending.ID, inventory.QCResultPass, "ok")
		require.NoError(t, err)
		assert.Equal(t, inventory.QCStatusInspected, view.QCStatus)
		assert.True(t, f.stock(t, itemID).QCHoldQuantity.Equal(dec(5)))

		_, err = f.svc.ReleaseBatch(ctx, inspector, pending.ID)
		assert.ErrorIs(t, err, shared.ErrUnauthorized)

		view, err = f.svc.ReleaseBatch(ctx, manager, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.QCStatusReleased, view.QCStatus)
		assert.True(t, f.stock(t, itemID).QCHoldQuantity.IsZero())

		res, err := f.svc.DeductStockOnFulfillment(ctx, appinv.FulfillStockRequest{
			OrderID: orderID,
			Items:   []appinv.ItemQuantity{line(itemID, 2)},
		})
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, pending.ID, res.Items[0].Batches[0].BatchID)
	})

	t.Run("failed inspection is terminal", func(t *testing.T) {
		bad := f.receive(t, itemID, 3, 1, day(20))
		_, err := f.svc.InspectBatch(ctx, inspector, bad.ID, inventory.QCResultFail, "mould")
		require.NoError(t, err)

		_, err = f.svc.ReleaseBatch(ctx, manager, bad.ID)
		assert.Equal(t, shared.CodeInvalidTransition, shared.ErrorCode(err))
		_, err = f.svc.InspectBatch(ctx, inspector, bad.ID, inventory.QCResultPass, "retry")
		assert.Equal(t, shared.CodeInvalidTransition, shared.ErrorCode(err))

		assert.True(t, f.stock(t, itemID).QCHoldQuantity.Equal(dec(3)))
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := f.svc.ReleaseBatch(ctx, manager, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
