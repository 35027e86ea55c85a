package gateway

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechinMama/RecipeForADisaster/internal/bridge"
	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

// seedQueue writes n pending creates into the settings' store.
func seedQueue(t *testing.T, settings *conf.Settings, n int) {
	t.Helper()
	store, err := datastore.OpenStore(t.Context(), settings, logger.Discard())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	body := `{"title":"Soup"}`
	for i := range n {
		_, err := store.EnqueueOperation(t.Context(), datastore.OperationInput{
			URL:       settings.UpstreamURL("/api/recipes", ""),
			Method:    http.MethodPost,
			Headers:   entities.Headers{"content-type": "application/json"},
			Body:      &body,
			Timestamp: int64(i + 1),
			Operation: entities.OperationCreateRecipe,
		})
		require.NoError(t, err)
	}
}

func pendingCount(t *testing.T, settings *conf.Settings) int {
	t.Helper()
	store, err := datastore.OpenStore(t.Context(), settings, logger.Discard())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	return store.CountPendingOperations(t.Context())
}

func TestSyncOnce_UnreachableUpstreamKeepsQueue(t *testing.T) {
	t.Parallel()
	settings := conf.Defaults()
	settings.Upstream = "http://127.0.0.1:1"
	settings.Store.DataDir = t.TempDir()
	seedQueue(t, settings, 3)

	result, err := SyncOnce(t.Context(), settings, logger.Discard())

	require.Error(t, err)
	assert.ErrorIs(t, err, bridge.ErrOffline)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.Zero(t, result.Total)
	assert.Equal(t, 3, pendingCount(t, settings))
}

func TestSyncOnce_ReachableUpstreamDrainsQueue(t *testing.T) {
	t.Parallel()
	settings := conf.Defaults()
	settings.Upstream = upstream
	settings.Store.DataDir = t.TempDir()
	seedQueue(t, settings, 2)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, upstream+"/api/health", httpmock.NewStringResponder(http.StatusOK, `ok`))
	transport.RegisterResponder(http.MethodPost, upstream+"/api/recipes", httpmock.NewStringResponder(http.StatusCreated, `{"ok":true}`))

	result, err := SyncOnce(t.Context(), settings, logger.Discard(), WithHTTPClient(&http.Client{Transport: transport}))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 2, result.Total)
	assert.Zero(t, pendingCount(t, settings))
}

func TestUpstreamClient_RelaysRedirects(t *testing.T) {
	t.Parallel()
	settings := conf.Defaults()
	settings.Upstream = upstream

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, upstream+"/api/recipes",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusSeeOther, "")
			resp.Header.Set("Location", upstream+"/api/recipes/7")
			return resp, nil
		})
	transport.RegisterResponder(http.MethodGet, upstream+"/api/recipes/7", httpmock.NewStringResponder(http.StatusOK, `{}`))

	client := upstreamClient(settings)
	client.Transport = transport
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, upstream+"/api/recipes", http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, upstream+"/api/recipes/7", resp.Header.Get("Location"))
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+upstream+"/api/recipes"])
	assert.Zero(t, transport.GetCallCountInfo()["GET "+upstream+"/api/recipes/7"])
}
