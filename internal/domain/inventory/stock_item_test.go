package inventory

import (
	"testing"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStockItemT(t *testing.T) *StockItem {
	t.Helper()
	item, err := NewStockItem(testItemID, testWarehouseID)
	require.NoError(t, err)
	return item
}

func eventTypes(item *StockItem) []string {
	var out []string
	for _, e := range item.GetDomainEvents() {
		out = append(out, e.EventType())
	}
	return out
}

func TestStockItem_ReceiveWeightedAverage(t *testing.T) {
	item := newStockItemT(t)

	b1, err := NewBatch(NewBatchParams{ItemID: testItemID, WarehouseID: testWarehouseID, Quantity: dec(10), UnitCost: dec(2)})
	require.NoError(t, err)
	require.NoError(t, item.Receive(b1))

	b2, err := NewBatch(NewBatchParams{ItemID: testItemID, WarehouseID: testWarehouseID, Quantity: dec(30), UnitCost: dec(4), RequiresQC: true})
	require.NoError(t, err)
	require.NoError(t, item.Receive(b2))

	assert.True(t, item.Available().Equal(dec(40)))
	assert.True(t, item.QCHold().Equal(dec(30)))
	assert.True(t, item.AvgCost().Equal(decimal.NewFromFloat(3.5)), item.AvgCost().String())
	assert.Contains(t, eventTypes(item), EventTypeBatchReceived)
}

func TestStockItem_ReserveAndRelease(t *testing.T) {
	item := newStockItemT(t)
	require.NoError(t, item.Receive(releasedBatch(t, 10, NoExpiry(), day(0))))

	require.NoError(t, item.Reserve(dec(6), "order-1"))
	assert.True(t, item.Sellable().Equal(dec(4)))

	err := item.Reserve(dec(5), "order-2")
	require.Error(t, err)
	assert.Equal(t, shared.CodeInsufficientAvailableStock, shared.ErrorCode(err))
	assert.True(t, item.Reserved().Equal(dec(6)), "failed reservation leaves reserved untouched")

	released, err := item.Release(dec(4), "order-1")
	require.NoError(t, err)
	assert.True(t, released.Equal(dec(4)))

	released, err = item.Release(dec(100), "order-1")
	require.NoError(t, err)
	assert.True(t, released.Equal(dec(2)))
	assert.True(t, item.Reserved().IsZero(), "release floors at zero")

	released, err = item.Release(dec(5), "order-1")
	require.NoError(t, err)
	assert.True(t, released.IsZero())
}

func TestStockItem_DeductSplitsReservedPortion(t *testing.T) {
	item := newStockItemT(t)
	require.NoError(t, item.Receive(releasedBatch(t, 10, NoExpiry(), day(0))))
	require.NoError(t, item.Reserve(dec(3), "order-1"))
	require.NoError(t, item.Reserve(dec(5), "order-2"))

	require.NoError(t, item.Deduct(dec(4), dec(3), "order-1", nil))
	assert.True(t, item.Available().Equal(dec(6)))
	assert.True(t, item.Reserved().Equal(dec(5)))

	err := item.Deduct(dec(2), decimal.Zero, "order-3", nil)
	assert.Equal(t, shared.CodeInsufficientAvailableStock, shared.ErrorCode(err), "unreserved part must fit in sellable")
	assert.True(t, item.Reserved().LessThanOrEqual(item.Available()))
}

func TestStockItem_AdjustRules(t *testing.T) {
	item := newStockItemT(t)
	require.NoError(t, item.Receive(releasedBatch(t, 10, NoExpiry(), day(0))))
	require.NoError(t, item.Reserve(dec(4), ""))

	_, err := item.Adjust(dec(8), "  ")
	assert.Equal(t, shared.CodeInvalidReason, shared.ErrorCode(err))

	_, err = item.Adjust(dec(3), "count")
	assert.Equal(t, shared.CodeInvalidQuantity, shared.ErrorCode(err))

	delta, err := item.Adjust(dec(7), "cycle count")
	require.NoError(t, err)
	assert.True(t, delta.Equal(dec(-3)))
	assert.True(t, item.Available().Equal(dec(7)))
}

func TestStockItem_WriteOffClampsReservation(t *testing.T) {
	item := newStockItemT(t)
	b := releasedBatch(t, 5, NoExpiry(), day(0))
	require.NoError(t, item.Receive(b))
	require.NoError(t, item.Reserve(dec(5), "order-1"))

	clamped := item.WriteOff(b, dec(2), "kg", "spoiled", false)
	assert.True(t, clamped.Equal(dec(2)))
	assert.True(t, item.Available().Equal(dec(3)))
	assert.True(t, item.Reserved().Equal(dec(3)))

	item.WriteOff(b, dec(10), "kg", "flood", false)
	assert.True(t, item.Available().IsZero(), "available floors at zero")
}

func TestStockItem_LowStockSignal(t *testing.T) {
	item := newStockItemT(t)
	require.NoError(t, item.SetLowStockThreshold(dec(3)))
	require.NoError(t, item.Receive(releasedBatch(t, 10, NoExpiry(), day(0))))
	item.ClearDomainEvents()

	require.NoError(t, item.Reserve(dec(6), ""))
	assert.NotContains(t, eventTypes(item), EventTypeStockBelowThreshold)

	require.NoError(t, item.Reserve(dec(1), ""))
	assert.Contains(t, eventTypes(item), EventTypeStockBelowThreshold)

	assert.Error(t, item.SetLowStockThreshold(dec(-1)))
}

func TestStockItem_Reconcile(t *testing.T) {
	item := newStockItemT(t)
	released := releasedBatch(t, 4, NoExpiry(), day(0))
	held := newBatchT(t, 6, NoExpiry(), true, day(0))
	require.NoError(t, item.Receive(released))
	require.NoError(t, item.Receive(held))

	res := item.Reconcile([]*Batch{released, held})
	assert.False(t, res.HasDrift())

	require.NoError(t, released.Consume(dec(1)))
	res = item.Reconcile([]*Batch{released, held})
	assert.True(t, res.HasDrift())
	assert.True(t, res.AvailableAfter.Equal(dec(9)))
	assert.True(t, item.QCHold().Equal(dec(6)))
}

func TestRestoreStockItem_RejectsBrokenBound(t *testing.T) {
	snap := newStockItemT(t).Snapshot()
	snap.AvailableQuantity = dec(1)
	snap.ReservedQuantity = dec(2)
	_, err := RestoreStockItem(snap)
	assert.Error(t, err)
}
