package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/lock"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/erp/stockengine/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthroughLocker leaves mutual exclusion to the database row locks
type passthroughLocker struct{}

func (passthroughLocker) Acquire(context.Context, ...string) (appinv.Unlock, error) {
	return func() error { return nil }, nil
}

func newService(tdb *TestDB, locker appinv.KeyLocker, requiresQC bool) *appinv.Service {
	cfg := appinv.DefaultConfig()
	cfg.DefaultRequiresQC = requiresQC
	return appinv.NewService(
		persistence.NewRepositories(tdb.DB),
		persistence.NewGormTransactionScope(tdb.DB),
		locker,
		cfg,
		nil,
	)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func receive(t *testing.T, svc *appinv.Service, itemID uuid.UUID, qty int64, expiry time.Time) *appinv.BatchView {
	t.Helper()
	view, err := svc.ReceiveBatch(context.Background(), testutil.Manager(), appinv.ReceiveBatchRequest{
		ItemID:     itemID,
		Quantity:   dec(qty),
		UnitCost:   dec(2),
		ExpiryDate: &expiry,
	})
	require.NoError(t, err)
	return view
}

func TestPostgres_FEFOFulfilment(t *testing.T) {
	tdb := NewTestDB(t)
	tdb.CreateDefaultWarehouse()
	svc := newService(tdb, lock.NewMemoryLocker(time.Second), false)
	ctx := context.Background()

	itemID := uuid.New()
	late := receive(t, svc, itemID, 10, time.Now().AddDate(0, 0, 30))
	early := receive(t, svc, itemID, 10, time.Now().AddDate(0, 0, 5))

	lines := []appinv.ItemQuantity{{ItemID: itemID, Quantity: dec(15)}}
	res, err := svc.ReserveStock(ctx, appinv.ReserveStockRequest{OrderID: "SO-1", Items: lines})
	require.NoError(t, err)
	require.True(t, res.OK)

	fulfilled, err := svc.DeductStockOnFulfillment(ctx, appinv.FulfillStockRequest{OrderID: "SO-1", Items: lines})
	require.NoError(t, err)
	require.Len(t, fulfilled.Items, 1)
	require.Len(t, fulfilled.Items[0].Batches, 2)
	assert.Equal(t, early.ID, fulfilled.Items[0].Batches[0].BatchID)
	assert.True(t, fulfilled.Items[0].Batches[0].Quantity.Equal(dec(10)))
	assert.Equal(t, late.ID, fulfilled.Items[0].Batches[1].BatchID)
	assert.True(t, fulfilled.Items[0].Batches[1].Quantity.Equal(dec(5)))

	stock, err := svc.GetStock(ctx, itemID, nil)
	require.NoError(t, err)
	assert.True(t, stock.AvailableQuantity.Equal(dec(5)))
	assert.True(t, stock.ReservedQuantity.IsZero())

	history, err := svc.ListHistory(ctx, itemID, shared.Filter{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, history.Total, int64(4))

	report, err := svc.Reconcile(ctx, testutil.Manager(), itemID, nil)
	require.NoError(t, err)
	assert.False(t, report.Drift)
}

func TestPostgres_QCGatesDeduction(t *testing.T) {
	tdb := NewTestDB(t)
	tdb.CreateDefaultWarehouse()
	svc := newService(tdb, lock.NewMemoryLocker(time.Second), true)
	ctx := context.Background()
	manager := testutil.Manager()

	itemID := uuid.New()
	batch := receive(t, svc, itemID, 8, time.Now().AddDate(0, 0, 10))
	require.Equal(t, inventory.QCStatusPending, batch.QCStatus)

	lines := []appinv.ItemQuantity{{ItemID: itemID, Quantity: dec(3)}}
	_, err := svc.DeductStockOnFulfillment(ctx, appinv.FulfillStockRequest{OrderID: "SO-QC", Items: lines})
	assert.Equal(t, shared.CodeInsufficientReleasedStock, shared.ErrorCode(err))

	_, err = svc.InspectBatch(ctx, manager, batch.ID, inventory.QCResultPass, "ok")
	require.NoError(t, err)
	released, err := svc.ReleaseBatch(ctx, manager, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.QCStatusReleased, released.QCStatus)

	_, err = svc.DeductStockOnFulfillment(ctx, appinv.FulfillStockRequest{OrderID: "SO-QC", Items: lines})
	require.NoError(t, err)

	batches, err := svc.ListBatches(ctx, itemID, nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].RemainingQuantity.Equal(dec(5)))
}

func TestPostgres_ConcurrentReservationsUseRowLocks(t *testing.T) {
	tdb := NewTestDB(t)
	tdb.CreateDefaultWarehouse()
	// no application lock: SELECT ... FOR UPDATE alone must prevent overselling
	svc := newService(tdb, passthroughLocker{}, false)
	ctx := context.Background()

	itemID := uuid.New()
	receive(t, svc, itemID, 10, time.Now().AddDate(0, 0, 10))

	var ok, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ReserveStock(ctx, appinv.ReserveStockRequest{
				OrderID: uuid.NewString(),
				Items:   []appinv.ItemQuantity{{ItemID: itemID, Quantity: dec(1)}},
			})
			if !assert.NoError(t, err) {
				return
			}
			if res.OK {
				atomic.AddInt32(&ok, 1)
				return
			}
			atomic.AddInt32(&rejected, 1)
			assert.Equal(t, shared.CodeInsufficientAvailableStock, res.Failures[0].Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok)
	assert.Equal(t, int32(15), rejected)

	stock, err := svc.GetStock(ctx, itemID, nil)
	require.NoError(t, err)
	assert.True(t, stock.ReservedQuantity.Equal(dec(10)))
	assert.True(t, stock.ReservedQuantity.LessThanOrEqual(stock.AvailableQuantity))
}

func TestPostgres_TransferBetweenWarehouses(t *testing.T) {
	tdb := NewTestDB(t)
	from := tdb.CreateDefaultWarehouse()
	to := tdb.CreateWarehouse("EAST")
	svc := newService(tdb, lock.NewMemoryLocker(time.Second), false)
	ctx := context.Background()

	itemID := uuid.New()
	receive(t, svc, itemID, 6, time.Now().AddDate(0, 0, 3))

	res, err := svc.TransferStock(ctx, testutil.Manager(), appinv.TransferStockRequest{
		ItemID:          itemID,
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Quantity:        dec(4),
	})
	require.NoError(t, err)
	assert.True(t, res.From.AvailableQuantity.Equal(dec(2)))
	assert.True(t, res.To.AvailableQuantity.Equal(dec(4)))

	destBatches, err := svc.ListBatches(ctx, itemID, &to)
	require.NoError(t, err)
	require.Len(t, destBatches, 1)
	assert.Equal(t, inventory.BatchSourceTransfer, destBatches[0].Source)
	assert.Equal(t, inventory.QCStatusReleased, destBatches[0].QCStatus)
}

func TestPostgres_CheckConstraintRejectsOverReservation(t *testing.T) {
	tdb := NewTestDB(t)
	tdb.CreateDefaultWarehouse()
	svc := newService(tdb, lock.NewMemoryLocker(time.Second), false)

	itemID := uuid.New()
	receive(t, svc, itemID, 5, time.Now().AddDate(0, 0, 3))

	err := tdb.DB.Exec(`UPDATE stock_items SET reserved_quantity = 6 WHERE item_id = ?`, itemID).Error
	assert.Error(t, err)
}
