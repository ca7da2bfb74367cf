package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/infrastructure/lock"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// lockLog records the order rows are locked or touched inside a transaction
type lockLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *lockLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *lockLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.calls
	l.calls = nil
	return out
}

type loggedStockRepo struct {
	inventory.StockItemRepository
	log *lockLog
}

func (r loggedStockRepo) FindByItemAndWarehouseForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*inventory.StockItem, error) {
	r.log.add("stock")
	return r.StockItemRepository.FindByItemAndWarehouseForUpdate(ctx, itemID, warehouseID)
}

type loggedBatchRepo struct {
	inventory.BatchRepository
	log *lockLog
}

func (r loggedBatchRepo) ListByItemForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) ([]*inventory.Batch, error) {
	r.log.add("batches")
	return r.BatchRepository.ListByItemForUpdate(ctx, itemID, warehouseID)
}

func (r loggedBatchRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	r.log.add("batches")
	return r.BatchRepository.FindByIDForUpdate(ctx, id)
}

type loggedReservationRepo struct {
	inventory.ReservationRepository
	log *lockLog
}

func (r loggedReservationRepo) FindActive(ctx context.Context, orderID string, itemID, warehouseID uuid.UUID) (*inventory.Reservation, error) {
	r.log.add("reservation")
	return r.ReservationRepository.FindActive(ctx, orderID, itemID, warehouseID)
}

func (r loggedReservationRepo) Save(ctx context.Context, res *inventory.Reservation) error {
	r.log.add("reservation")
	return r.ReservationRepository.Save(ctx, res)
}

// loggedScope wraps the transaction repositories with the loggers above
type loggedScope struct {
	inner appinv.TransactionScope
	log   *lockLog
}

func (s loggedScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.inner.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
		return fn(appinv.Repositories{
			Stock:        loggedStockRepo{repos.StockRepo(), s.log},
			Batches:      loggedBatchRepo{repos.BatchRepo(), s.log},
			Reservations: loggedReservationRepo{repos.ReservationRepo(), s.log},
			History:      repos.HistoryRepo(),
			Wastage:      repos.WastageRepo(),
			Warehouses:   repos.WarehouseRepo(),
			Policies:     repos.PolicyRepo(),
		})
	})
}

func TestService_LocksStockRowFirst(t *testing.T) {
	ctx := context.Background()
	ttl := func(c *appinv.Config) { c.ReservationTTL = time.Hour }
	f := newFixture(t, ttl)

	cfg := appinv.DefaultConfig()
	ttl(&cfg)
	log := &lockLog{}
	scope := loggedScope{inner: persistence.NewGormTransactionScope(f.db), log: log}
	svc := appinv.NewService(f.repos, scope, lock.NewMemoryLocker(5*time.Second), cfg, zap.NewNop())

	t.Run("qc transitions", func(t *testing.T) {
		itemID := uuid.New()
		pending := f.receive(t, itemID, 5, 1, day(10))

		_, err := svc.QuarantineBatch(ctx, inspector, pending.ID, "hold")
		require.NoError(t, err)
		calls := log.take()
		require.NotEmpty(t, calls)
		assert.Equal(t, "stock", calls[0])
		assert.Contains(t, calls, "batches")
	})

	t.Run("reservation expiry", func(t *testing.T) {
		itemID := uuid.New()
		f.withoutQC(t, itemID)
		f.receive(t, itemID, 5, 1, nil)
		_, err := f.svc.ReserveStock(ctx, appinv.ReserveStockRequest{OrderID: "SO-LOCK", Items: []appinv.ItemQuantity{line(itemID, 2)}})
		require.NoError(t, err)

		stats, err := svc.ExpireReservations(ctx, f.now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.SuccessReleased)
		calls := log.take()
		require.NotEmpty(t, calls)
		assert.Equal(t, "stock", calls[0])
		assert.Contains(t, calls, "reservation")
		assert.True(t, f.stock(t, itemID).ReservedQuantity.IsZero())
	})
}
