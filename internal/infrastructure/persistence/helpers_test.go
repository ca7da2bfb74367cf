package persistence

import (
	"testing"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupStockTestDB opens an isolated in-memory SQLite database with the stock tables
func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

var testDay = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestBatch(t *testing.T, itemID, warehouseID uuid.UUID, qty int64, expiry inventory.ExpiryDate, receivedAt time.Time) *inventory.Batch {
	t.Helper()
	b, err := inventory.NewBatch(inventory.NewBatchParams{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		Quantity:    decimal.NewFromInt(qty),
		UnitCost:    decimal.NewFromInt(2),
		Expiry:      expiry,
		ReceivedAt:  receivedAt,
	})
	require.NoError(t, err)
	return b
}
