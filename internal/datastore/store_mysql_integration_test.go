//go:build integration

package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/testutil/containers"
)

func TestMySQLStore_QueueAndMirror(t *testing.T) {
	mysql := containers.StartMySQL(t)

	settings := conf.Defaults()
	settings.Store.Driver = conf.DriverMySQL
	settings.Store.DSN = mysql.DSN()

	store, err := OpenStore(t.Context(), settings, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, "mysql", store.mgr.Dialect())

	body := `{"title":"Soup"}`
	for i, ts := range []int64{30, 10, 20} {
		_, err := store.EnqueueOperation(t.Context(), OperationInput{
			URL:       "http://upstream/api/recipes",
			Method:    "POST",
			Headers:   entities.Headers{"content-type": "application/json"},
			Body:      &body,
			Timestamp: ts,
			Operation: entities.OperationCreateRecipe,
		})
		require.NoError(t, err, i)
	}

	ops, err := store.ListPendingOperations(t.Context())
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{ops[0].Timestamp, ops[1].Timestamp, ops[2].Timestamp})
	assert.Equal(t, "application/json", ops[0].Headers["content-type"])

	require.NoError(t, store.UpsertCachedEntities(t.Context(), raws(`{"id":"r1","v":1}`, `{"id":2}`)))
	require.NoError(t, store.UpsertCachedEntities(t.Context(), raws(`{"id":"r1","v":2}`)))
	assert.Equal(t, 2, store.CachedEntityCount(t.Context()))
	var docs []string
	for _, raw := range store.GetAllCachedEntities(t.Context()) {
		docs = append(docs, string(raw))
	}
	assert.Contains(t, docs, `{"id":"r1","v":2}`)

	require.NoError(t, mysql.Reset(t.Context(), "pending_recipes", "cached_recipes"))
	assert.Zero(t, store.CountPendingOperations(t.Context()))
}
