package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope_Execute(t *testing.T) {
	ctx := context.Background()
	db := setupStockTestDB(t)
	scope := NewGormTransactionScope(db)
	reads := NewRepositories(db)
	itemID, warehouseID := uuid.New(), uuid.New()

	t.Run("commits every repository write together", func(t *testing.T) {
		err := scope.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
			item, err := inventory.NewStockItem(itemID, warehouseID)
			if err != nil {
				return err
			}
			b := newTestBatch(t, itemID, warehouseID, 6, inventory.NoExpiry(), testDay)
			if err := item.Receive(b); err != nil {
				return err
			}
			if err := repos.BatchRepo().Create(ctx, b); err != nil {
				return err
			}
			return repos.StockRepo().Save(ctx, item)
		})
		require.NoError(t, err)

		batches, err := reads.BatchRepo().ListByItem(ctx, itemID, &warehouseID)
		require.NoError(t, err)
		assert.Len(t, batches, 1)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		otherItem := uuid.New()
		boom := errors.New("boom")
		err := scope.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
			b := newTestBatch(t, otherItem, warehouseID, 2, inventory.NoExpiry(), testDay)
			if err := repos.BatchRepo().Create(ctx, b); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		batches, err := reads.BatchRepo().ListByItem(ctx, otherItem, nil)
		require.NoError(t, err)
		assert.Empty(t, batches)

		_, err = reads.StockRepo().FindByItemAndWarehouse(ctx, otherItem, warehouseID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormTransactionScope_MapsAbortsToConflict(t *testing.T) {
	ctx := context.Background()
	scope := NewGormTransactionScope(setupStockTestDB(t))

	for _, code := range []string{"40P01", "40001"} {
		t.Run(code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: code, Message: "aborted"}
			err := scope.Execute(ctx, func(appinv.TransactionalRepositories) error {
				return fmt.Errorf("failed to lock stock row: %w", pgErr)
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
			assert.True(t, shared.IsTransient(err))
			var got *pgconn.PgError
			assert.True(t, errors.As(err, &got))
		})
	}

	t.Run("other database errors pass through", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
		err := scope.Execute(ctx, func(appinv.TransactionalRepositories) error {
			return pgErr
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.False(t, shared.IsTransient(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, translateTxError(nil))
	})
}
