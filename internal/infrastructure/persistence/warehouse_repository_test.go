package persistence

import (
	"context"
	"testing"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormWarehouseRepository_FindDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewGormWarehouseRepository(setupStockTestDB(t))

	_, err := repo.FindDefault(ctx)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	main, err := inventory.NewWarehouse("main", "Main")
	require.NoError(t, err)
	main.IsDefault = true
	require.NoError(t, repo.Save(ctx, main))

	found, err := repo.FindDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, main.ID, found.ID)
	assert.Equal(t, "MAIN", found.Code)

	t.Run("saving a new default clears the old one", func(t *testing.T) {
		annex, err := inventory.NewWarehouse("annex", "Annex")
		require.NoError(t, err)
		annex.IsDefault = true
		require.NoError(t, repo.Save(ctx, annex))

		found, err := repo.FindDefault(ctx)
		require.NoError(t, err)
		assert.Equal(t, annex.ID, found.ID)

		old, err := repo.FindByID(ctx, main.ID)
		require.NoError(t, err)
		assert.False(t, old.IsDefault)
	})

	t.Run("inactive default is ignored", func(t *testing.T) {
		found, err := repo.FindDefault(ctx)
		require.NoError(t, err)
		found.IsActive = false
		require.NoError(t, repo.Save(ctx, found))

		_, err = repo.FindDefault(ctx)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormWarehouseRepository_FindByIDNotFound(t *testing.T) {
	repo := NewGormWarehouseRepository(setupStockTestDB(t))
	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormItemPolicyRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewGormItemPolicyRepository(setupStockTestDB(t))
	itemID := uuid.New()

	_, err := repo.FindByItemID(ctx, itemID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, repo.Save(ctx, &inventory.ItemPolicy{ItemID: itemID, RequiresQC: false, Unit: "kg"}))
	p, err := repo.FindByItemID(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, p.RequiresQC)
	assert.Equal(t, "kg", p.Unit)

	require.NoError(t, repo.Save(ctx, &inventory.ItemPolicy{ItemID: itemID, RequiresQC: true, RequiresExpiry: true, Unit: "kg"}))
	p, err = repo.FindByItemID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, p.RequiresQC)
	assert.True(t, p.RequiresExpiry)
}
