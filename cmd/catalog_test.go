package main

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cardscope.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func TestResolveBank(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	bank, err := st.CreateBank(ctx, "Приорбанк", "https://www.priorbank.by")
	require.NoError(t, err)

	t.Run("by id", func(t *testing.T) {
		got, err := resolveBank(ctx, st, strconv.FormatInt(bank.ID, 10), false)
		require.NoError(t, err)
		assert.Equal(t, "Приорбанк", got.Name)
	})

	t.Run("by name", func(t *testing.T) {
		got, err := resolveBank(ctx, st, "Приорбанк", false)
		require.NoError(t, err)
		assert.Equal(t, bank.ID, got.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := resolveBank(ctx, st, "999", true)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := resolveBank(ctx, st, "Беларусбанк", false)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown name created", func(t *testing.T) {
		got, err := resolveBank(ctx, st, "Беларусбанк", true)
		require.NoError(t, err)
		assert.NotZero(t, got.ID)

		again, err := resolveBank(ctx, st, "Беларусбанк", false)
		require.NoError(t, err)
		assert.Equal(t, got.ID, again.ID)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := resolveBank(ctx, st, "", true)
		assert.Error(t, err)
	})
}

func TestResolveRequest(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("no products", func(t *testing.T) {
		_, err := resolveRequest(ctx, st, 1, nil, []int64{1})
		assert.Error(t, err)
	})

	t.Run("no characteristics defined", func(t *testing.T) {
		_, err := resolveRequest(ctx, st, 1, []int64{1}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "catalog seed")
	})

	t.Run("explicit ids pass through", func(t *testing.T) {
		req, err := resolveRequest(ctx, st, 1, []int64{3, 1}, []int64{9})
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 1}, req.ProductIDs)
		assert.Equal(t, []int64{9}, req.CharacteristicIDs)
		assert.Equal(t, int64(1), req.UserID)
	})

	t.Run("defaults to own and shared characteristics", func(t *testing.T) {
		_, err := st.UpsertCharacteristics(ctx, 0, model.BaseCharacteristics())
		require.NoError(t, err)
		own, err := st.CreateCharacteristic(ctx, model.Characteristic{UserID: 1, Name: "cashback"})
		require.NoError(t, err)
		_, err = st.CreateCharacteristic(ctx, model.Characteristic{UserID: 2, Name: "other_user"})
		require.NoError(t, err)

		req, err := resolveRequest(ctx, st, 1, []int64{1}, nil)
		require.NoError(t, err)
		assert.Len(t, req.CharacteristicIDs, len(model.BaseCharacteristics())+1)
		assert.Contains(t, req.CharacteristicIDs, own.ID)
	})
}
