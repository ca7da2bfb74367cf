package inventory_test

import (
	"context"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ExpireReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *appinv.Config) { c.ReservationTTL = time.Hour })
	a, b := uuid.New(), uuid.New()
	f.withoutQC(t, a)
	f.withoutQC(t, b)
	f.receive(t, a, 10, 1, nil)
	f.receive(t, b, 10, 1, nil)

	_, err := f.svc.ReserveStock(ctx, appinv.ReserveStockRequest{OrderID: "SO-OLD", Items: []appinv.ItemQuantity{line(a, 4), line(b, 2)}})
	require.NoError(t, err)

	t.Run("nothing is due before the deadline", func(t *testing.T) {
		stats, err := f.svc.ExpireReservations(ctx, f.now.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Zero(t, stats.TotalExpired)
		assert.True(t, f.stock(t, a).ReservedQuantity.Equal(dec(4)))
	})

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.ReserveStock(ctx, appinv.ReserveStockRequest{OrderID: "SO-NEW", Items: []appinv.ItemQuantity{line(a, 1)}})
	require.NoError(t, err)

	t.Run("expired holds are released", func(t *testing.T) {
		stats, err := f.svc.ExpireReservations(ctx, f.now)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalExpired)
		assert.Equal(t, 2, stats.SuccessReleased)
		assert.Zero(t, stats.FailedReleases)
		assert.True(t, stats.ReleasedQty.Equal(dec(6)))

		assert.True(t, f.stock(t, a).ReservedQuantity.Equal(dec(1)))
		assert.True(t, f.stock(t, b).ReservedQuantity.IsZero())

		rows, err := f.repos.Reservations.ListByOrder(ctx, "SO-OLD")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, r := range rows {
			assert.Equal(t, inventory.ReservationStatusExpired, r.Status)
			assert.True(t, r.Outstanding.IsZero())
		}

		history, err := f.svc.ListHistory(ctx, b, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, inventory.ChangeTypeExpire, history.Items[0].ChangeType)
	})

	t.Run("a second sweep is a no-op", func(t *testing.T) {
		stats, err := f.svc.ExpireReservations(ctx, f.now)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalExpired)
	})

	t.Run("releasing an expired order does nothing", func(t *testing.T) {
		res, err := f.svc.ReleaseReservedStock(ctx, appinv.ReleaseStockRequest{OrderID: "SO-OLD", Items: []appinv.ItemQuantity{line(b, 2)}})
		require.NoError(t, err)
		assert.Empty(t, res.Failed())
		assert.True(t, f.stock(t, b).ReservedQuantity.IsZero())
	})
}

func TestService_ReservationsWithoutTTLNeverExpire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := uuid.New()
	f.withoutQC(t, a)
	f.receive(t, a, 3, 1, nil)

	_, err := f.svc.ReserveStock(ctx, appinv.ReserveStockRequest{OrderID: "SO-KEEP", Items: []appinv.ItemQuantity{line(a, 3)}})
	require.NoError(t, err)

	stats, err := f.svc.ExpireReservations(ctx, f.now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Zero(t, stats.TotalExpired)
	assert.True(t, f.stock(t, a).ReservedQuantity.Equal(dec(3)))
}
