// Package integration runs the stock engine against a real PostgreSQL
// started with testcontainers and migrated with the embedded migrations.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/infrastructure/migration"
	"github.com/erp/stockengine/internal/infrastructure/persistence"
	"github.com/erp/stockengine/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB represents a migrated test database
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// NewTestDB starts a fresh PostgreSQL container for the test and applies
// every migration. It skips in -short mode.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stock_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)

	return testDB
}

// Close closes the connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanTables truncates every stock table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to get table names")

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			tdb.t.Logf("Warning: Failed to truncate table %s: %v", table, err)
		}
	}
}

// CreateDefaultWarehouse inserts the default warehouse and returns its ID
func (tdb *TestDB) CreateDefaultWarehouse() uuid.UUID {
	tdb.t.Helper()
	return tdb.createWarehouse("MAIN", true)
}

// CreateWarehouse inserts a non-default warehouse and returns its ID
func (tdb *TestDB) CreateWarehouse(code string) uuid.UUID {
	tdb.t.Helper()
	return tdb.createWarehouse(code, false)
}

func (tdb *TestDB) createWarehouse(code string, isDefault bool) uuid.UUID {
	wh, err := inventory.NewWarehouse(code, "Warehouse "+code)
	require.NoError(tdb.t, err)
	wh.IsDefault = isDefault
	require.NoError(tdb.t, persistence.NewGormWarehouseRepository(tdb.DB).Save(context.Background(), wh))
	return wh.ID
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to open embedded migrations")
	require.NoError(t, m.Up(), "Failed to run migrations")
}
