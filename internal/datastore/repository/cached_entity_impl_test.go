package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
)

func TestCachedEntity_UpsertOverwritesByID(t *testing.T) {
	t.Parallel()
	repo := NewCachedEntityRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(t.Context(), []entities.CachedEntity{
		{ID: "a", Data: `{"id":"a","title":"Soup"}`, LastModified: 100},
	}))
	require.NoError(t, repo.Upsert(t.Context(), []entities.CachedEntity{
		{ID: "a", Data: `{"id":"a","title":"Stew"}`, LastModified: 200},
	}))

	all, err := repo.All(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.JSONEq(t, `{"id":"a","title":"Stew"}`, all[0].Data)
	assert.Equal(t, int64(200), all[0].LastModified)
}

func TestCachedEntity_UpsertIsAllOrNothing(t *testing.T) {
	t.Parallel()
	repo := NewCachedEntityRepository(setupTestDB(t))

	err := repo.Upsert(t.Context(), []entities.CachedEntity{
		{ID: "a", Data: `{"id":"a"}`, LastModified: 1},
		{ID: "", Data: `{}`, LastModified: 1},
	})
	require.ErrorIs(t, err, ErrMissingEntityID)

	count, err := repo.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCachedEntity_UpsertEmptyIsNoop(t *testing.T) {
	t.Parallel()
	repo := NewCachedEntityRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(t.Context(), nil))
	all, err := repo.All(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCachedEntity_ModifiedSince(t *testing.T) {
	t.Parallel()
	repo := NewCachedEntityRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(t.Context(), []entities.CachedEntity{
		{ID: "old", Data: `{"id":"old"}`, LastModified: 10},
		{ID: "mid", Data: `{"id":"mid"}`, LastModified: 20},
		{ID: "new", Data: `{"id":"new"}`, LastModified: 30},
	}))

	items, err := repo.ModifiedSince(t.Context(), 20)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, "mid", items[1].ID)
}
