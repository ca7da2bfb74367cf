package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/erp/stockengine/internal/infrastructure/lock"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/erp/stockengine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	manager   = identity.NewActor("u-manager", "manager", "stock.manage", "qc.inspect", "qc.release")
	inspector = identity.NewActor("u-qa", "qa", "qc.inspect")
	clerk     = identity.NewActor("u-clerk", "clerk")
)

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// fixture is a service over an isolated SQLite database with one default
// warehouse
type fixture struct {
	svc       *appinv.Service
	db        *gorm.DB
	repos     appinv.Repositories
	publisher *recordingPublisher
	warehouse *inventory.Warehouse
	now       time.Time
}

func newFixture(t *testing.T, mutators ...func(*appinv.Config)) *fixture {
	t.Helper()

	dsn := "file:svc_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	cfg := appinv.DefaultConfig()
	cfg.Retry.Backoff = time.Millisecond
	for _, m := range mutators {
		m(&cfg)
	}

	repos := persistence.NewRepositories(db)
	svc := appinv.NewService(repos, persistence.NewGormTransactionScope(db), lock.NewMemoryLocker(5*time.Second), cfg, zap.NewNop())
	pub := &recordingPublisher{}
	svc.SetEventPublisher(pub)

	f := &fixture{svc: svc, db: db, repos: repos, publisher: pub, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc.SetClock(func() time.Time { return f.now })

	wh, err := inventory.NewWarehouse("main", "Main")
	require.NoError(t, err)
	wh.IsDefault = true
	require.NoError(t, repos.Warehouses.Save(context.Background(), wh))
	f.warehouse = wh
	return f
}

// withoutQC registers a catalog policy that skips inspection
func (f *fixture) withoutQC(t *testing.T, itemID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.repos.Policies.Save(context.Background(), &inventory.ItemPolicy{ItemID: itemID, Unit: "unit"}))
}

func (f *fixture) receive(t *testing.T, itemID uuid.UUID, qty, cost int64, expiry *time.Time) appinv.BatchView {
	t.Helper()
	view, err := f.svc.ReceiveBatch(context.Background(), manager, appinv.ReceiveBatchRequest{
		ItemID:     itemID,
		Quantity:   decimal.NewFromInt(qty),
		UnitCost:   decimal.NewFromInt(cost),
		ExpiryDate: expiry,
	})
	require.NoError(t, err)
	return *view
}

func (f *fixture) stock(t *testing.T, itemID uuid.UUID) *appinv.StockView {
	t.Helper()
	view, err := f.svc.GetStock(context.Background(), itemID, &f.warehouse.ID)
	require.NoError(t, err)
	require.NotNil(t, view)
	return view
}

func (f *fixture) batches(t *testing.T, itemID uuid.UUID) []appinv.BatchView {
	t.Helper()
	views, err := f.svc.ListBatches(context.Background(), itemID, &f.warehouse.ID)
	require.NoError(t, err)
	return views
}

func day(offset int) *time.Time {
	d := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	return &d
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func line(itemID uuid.UUID, qty int64) appinv.ItemQuantity {
	return appinv.ItemQuantity{ItemID: itemID, Quantity: dec(qty)}
}
