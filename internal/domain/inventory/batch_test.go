package inventory

import (
	"errors"
	"testing"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatch(t *testing.T) {
	t.Run("requires QC starts pending", func(t *testing.T) {
		b := newBatchT(t, 10, ExpiresOn(day(5)), true, day(0))
		assert.Equal(t, QCStatusPending, b.QC().Status())
		assert.False(t, b.IsReleased())
		assert.True(t, b.Remaining().Equal(dec(10)))
		assert.NotEmpty(t, b.BatchNumber)
		assert.Equal(t, BatchSourceReceipt, b.Source)
	})

	t.Run("no QC is released on receipt", func(t *testing.T) {
		b := releasedBatch(t, 10, NoExpiry(), day(0))
		assert.Equal(t, QCStatusReleased, b.QC().Status())
		assert.NotNil(t, b.QC().At())
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		for _, q := range []int64{0, -3} {
			_, err := NewBatch(NewBatchParams{ItemID: testItemID, WarehouseID: testWarehouseID, Quantity: dec(q)})
			assert.Equal(t, shared.CodeInvalidQuantity, shared.ErrorCode(err))
		}
	})

	t.Run("rejects negative cost", func(t *testing.T) {
		_, err := NewBatch(NewBatchParams{ItemID: testItemID, WarehouseID: testWarehouseID, Quantity: dec(1), UnitCost: dec(-1)})
		assert.Equal(t, shared.CodeInvalidCost, shared.ErrorCode(err))
	})

	t.Run("rejects missing item", func(t *testing.T) {
		_, err := NewBatch(NewBatchParams{ItemID: uuid.Nil, WarehouseID: testWarehouseID, Quantity: dec(1)})
		assert.Equal(t, shared.CodeInvalidItem, shared.ErrorCode(err))
	})
}

func TestBatch_CountersNeverOverConsume(t *testing.T) {
	b := releasedBatch(t, 10, NoExpiry(), day(0))

	require.NoError(t, b.Consume(dec(4)))
	require.NoError(t, b.Transfer(dec(3)))
	require.NoError(t, b.WriteOff(dec(2)))
	assert.True(t, b.Remaining().Equal(dec(1)))

	err := b.Consume(dec(2))
	require.Error(t, err)
	assert.Equal(t, shared.CodeOverConsumption, shared.ErrorCode(err))
	assert.True(t, b.Remaining().Equal(dec(1)), "rejected consumption must not mutate")
	assert.True(t, b.Consumed().Equal(dec(4)))

	require.NoError(t, b.Consume(dec(1)))
	assert.True(t, b.IsRetired())
	total := b.Consumed().Add(b.Transferred()).Add(b.WrittenOff())
	assert.True(t, total.LessThanOrEqual(b.Received()))

	err = b.WriteOff(decimal.Zero)
	assert.Equal(t, shared.CodeInvalidQuantity, shared.ErrorCode(err))
}

func TestBatch_SnapshotRoundTrip(t *testing.T) {
	b := newBatchT(t, 8, ExpiresOn(day(3)), true, day(0))
	require.NoError(t, b.Inspect(QCResultPass, "ok", day(1)))
	require.NoError(t, b.Consume(dec(1)))

	restored, err := RestoreBatch(b.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, b.ID, restored.ID)
	assert.True(t, restored.Remaining().Equal(dec(7)))
	assert.Equal(t, QCStatusInspected, restored.QC().Status())
	assert.Equal(t, QCResultPass, restored.QC().Result())
	assert.Equal(t, "2026-03-04", restored.Expiry.String())
}

func TestRestoreBatch_RejectsBrokenRows(t *testing.T) {
	snap := releasedBatch(t, 5, NoExpiry(), day(0)).Snapshot()
	snap.ConsumedQuantity = dec(6)
	_, err := RestoreBatch(snap)
	assert.True(t, errors.Is(err, shared.NewDomainError(shared.CodeOverConsumption, "")))

	snap = releasedBatch(t, 5, NoExpiry(), day(0)).Snapshot()
	snap.QCStatus = "approved"
	_, err = RestoreBatch(snap)
	assert.Error(t, err)
}
