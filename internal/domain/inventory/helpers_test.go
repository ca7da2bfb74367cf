package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testItemID      = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testWarehouseID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	baseDay         = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func day(n int) time.Time {
	return baseDay.AddDate(0, 0, n)
}

func newBatchT(t *testing.T, qty int64, expiry ExpiryDate, requiresQC bool, receivedAt time.Time) *Batch {
	t.Helper()
	b, err := NewBatch(NewBatchParams{
		ItemID:      testItemID,
		WarehouseID: testWarehouseID,
		Quantity:    dec(qty),
		UnitCost:    dec(2),
		Expiry:      expiry,
		RequiresQC:  requiresQC,
		ReceivedAt:  receivedAt,
	})
	require.NoError(t, err)
	return b
}

func releasedBatch(t *testing.T, qty int64, expiry ExpiryDate, receivedAt time.Time) *Batch {
	return newBatchT(t, qty, expiry, false, receivedAt)
}
