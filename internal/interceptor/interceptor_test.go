package interceptor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/httpcache"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

const upstream = "http://upstream.test"

type fixture struct {
	settings  *conf.Settings
	transport *httpmock.MockTransport
	caches    *httpcache.Storage
	store     *datastore.Store
	icpt      *Interceptor
	queued    []uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settings := conf.Defaults()
	settings.Upstream = upstream
	settings.Store.DataDir = t.TempDir()

	store, err := datastore.OpenStore(t.Context(), settings, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		settings:  settings,
		transport: httpmock.NewMockTransport(),
		caches:    httpcache.New("", logger.Discard()),
		store:     store,
	}
	f.icpt = New(settings, &http.Client{Transport: f.transport}, f.caches, store, logger.Discard(),
		WithHooks(MirrorHook(store, settings.Mirror.Patterns, nil, logger.Discard())),
		WithOnQueued(func(id uint, _ string) { f.queued = append(f.queued, id) }),
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
	)
	return f
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	icpt := New(conf.Defaults(), http.DefaultClient, httpcache.New("", nil), nil, nil)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   Strategy
	}{
		{"api path", "/api/recipes", nil, StrategyAPI},
		{"api wins over dest", "/api/logo.png", map[string]string{"Sec-Fetch-Dest": "image"}, StrategyAPI},
		{"script", "/static/js/bundle.js", map[string]string{"Sec-Fetch-Dest": "script"}, StrategyStatic},
		{"style", "/static/css/main.css", map[string]string{"Sec-Fetch-Dest": "style"}, StrategyStatic},
		{"font", "/fonts/a.woff2", map[string]string{"Sec-Fetch-Dest": "font"}, StrategyStatic},
		{"navigation", "/recipes/1", map[string]string{"Sec-Fetch-Mode": "navigate", "Sec-Fetch-Dest": "document"}, StrategyNavigation},
		{"other", "/manifest.json", nil, StrategyDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, icpt.Classify(req))
		})
	}
}

func TestOperationType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, entities.OperationCreateRecipe, OperationType(http.MethodPost, "/api/recipes"))
	assert.Equal(t, entities.OperationUpdateRecipe, OperationType(http.MethodPut, "/api/recipes/1"))
	assert.Equal(t, entities.OperationDeleteRecipe, OperationType(http.MethodDelete, "/api/recipes/1"))
	assert.Equal(t, entities.OperationUnknown, OperationType(http.MethodPatch, "/api/recipes/1"))
	assert.Equal(t, entities.OperationUnknown, OperationType(http.MethodPost, "/api/collections"))
}

func TestAPI_OnlineGetMirrorsRecipes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.RegisterResponder(http.MethodGet, upstream+"/api/recipes",
		httpmock.NewStringResponder(http.StatusOK, `{"data":{"recipes":[{"id":"a","title":"Soup"}]}}`))

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/recipes", http.NoBody))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"recipes":[{"id":"a","title":"Soup"}]}}`, readAll(t, resp))

	all := f.store.GetAllCachedEntities(t.Context())
	require.Len(t, all, 1)
	id, err := datastore.EntityID(all[0])
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	assert.Equal(t, 1, f.caches.Len(f.settings.Cache.APICacheName()))
}

func TestAPI_OnlineNonOKIsPassedThroughUncached(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.RegisterResponder(http.MethodGet, upstream+"/api/recipes/9",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"not found"}`))

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/recipes/9", http.NoBody))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, f.caches.Len(f.settings.Cache.APICacheName()))
}

func TestAPI_UnparseableBodyStillDelivered(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.RegisterResponder(http.MethodGet, upstream+"/api/recipes",
		httpmock.NewStringResponder(http.StatusOK, `not json`))

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/recipes", http.NoBody))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not json", readAll(t, resp))
	assert.Empty(t, f.store.GetAllCachedEntities(t.Context()))
}

func TestAPI_OfflineWriteIsQueued(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/recipes?draft=1", strings.NewReader(`{"title":"Soup"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Accept", "text/plain")
	req.Header.Set("Connection", "keep-alive")

	resp := f.icpt.Handle(req)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"message":"Operation queued for when you come back online","offline":true,"queued":true}`, readAll(t, resp))

	ops, err := f.store.ListPendingOperations(t.Context())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, upstream+"/api/recipes?draft=1", op.URL)
	assert.Equal(t, http.MethodPost, op.Method)
	assert.Equal(t, entities.OperationCreateRecipe, op.Operation)
	assert.Equal(t, int64(1_700_000_000_000), op.Timestamp)
	require.NotNil(t, op.Body)
	assert.JSONEq(t, `{"title":"Soup"}`, *op.Body)
	assert.Equal(t, "application/json", op.Headers["content-type"])
	assert.Equal(t, "application/json, text/plain", op.Headers["accept"])
	assert.NotContains(t, op.Headers, "connection")
	assert.Equal(t, []uint{op.ID}, f.queued)
}

func TestAPI_OfflineDeleteHasNoBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodDelete, "/api/recipes/3", http.NoBody))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ops, err := f.store.ListPendingOperations(t.Context())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.False(t, ops[0].HasBody())
	assert.Equal(t, entities.OperationDeleteRecipe, ops[0].Operation)
}

type failingStore struct{}

func (failingStore) EnqueueOperation(context.Context, datastore.OperationInput) (uint, error) {
	return 0, errors.Newf("disk full").Category(errors.CategoryDatabase).Build()
}
func (failingStore) GetAllCachedEntities(context.Context) []json.RawMessage { return nil }
func (failingStore) UpsertCachedEntities(context.Context, []json.RawMessage) error {
	return nil
}

func TestAPI_EnqueueFailureStillAccepted(t *testing.T) {
	t.Parallel()
	called := false
	icpt := New(conf.Defaults(), &http.Client{Transport: httpmock.NewMockTransport()}, httpcache.New("", nil), failingStore{}, nil,
		WithOnQueued(func(uint, string) { called = true }))

	resp := icpt.Handle(httptest.NewRequest(http.MethodPut, "/api/recipes/1", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, called)
}

func TestAPI_OfflineServesCachedResponse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.RegisterResponder(http.MethodGet, upstream+"/api/collections",
		httpmock.NewStringResponder(http.StatusOK, `{"data":{"collections":[]}}`))

	first := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/collections", http.NoBody))
	require.Equal(t, http.StatusOK, first.StatusCode)

	f.transport.Reset()
	second := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/collections", http.NoBody))

	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.JSONEq(t, `{"data":{"collections":[]}}`, readAll(t, second))
}

func TestAPI_OfflineCollectionServedFromEntityStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.store.UpsertCachedEntities(t.Context(), []json.RawMessage{
		json.RawMessage(`{"id":"a","title":"Soup"}`),
		json.RawMessage(`{"id":"b","title":"Stew"}`),
	}))

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/recipes", http.NoBody))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data struct {
			Recipes []map[string]any `json:"recipes"`
		} `json:"data"`
		Offline bool `json:"offline"`
		Cached  bool `json:"cached"`
	}
	require.NoError(t, json.Unmarshal([]byte(readAll(t, resp)), &body))
	assert.True(t, body.Offline)
	assert.True(t, body.Cached)
	assert.ElementsMatch(t, []map[string]any{
		{"id": "a", "title": "Soup"},
		{"id": "b", "title": "Stew"},
	}, body.Data.Recipes)
}

func TestAPI_OfflineGetWithoutFallbackIs503(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/profile", http.NoBody))

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Offline","message":"You are currently offline. Some features may not be available.","offline":true}`, readAll(t, resp))
}

func TestAPI_NilStoreCollectionIs503(t *testing.T) {
	t.Parallel()
	icpt := New(conf.Defaults(), &http.Client{Transport: httpmock.NewMockTransport()}, httpcache.New("", nil), nil, nil)

	resp := icpt.Handle(httptest.NewRequest(http.MethodGet, "/api/recipes", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = icpt.Handle(httptest.NewRequest(http.MethodPost, "/api/recipes", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestStatic_CacheFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.RegisterResponder(http.MethodGet, upstream+"/static/js/bundle.js",
		httpmock.NewStringResponder(http.StatusOK, `console.log(1)`))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/static/js/bundle.js", http.NoBody)
		req.Header.Set("Sec-Fetch-Dest", "script")
		return req
	}

	first := f.icpt.Handle(newReq())
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "console.log(1)", readAll(t, first))

	second := f.icpt.Handle(newReq())
	assert.Equal(t, "console.log(1)", readAll(t, second))
	assert.Equal(t, 1, f.transport.GetTotalCallCount())
}

func TestStatic_NetworkFailureIsBadGateway(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/logo512.png", http.NoBody)
	req.Header.Set("Sec-Fetch-Dest", "image")

	resp := f.icpt.Handle(req)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestNavigation_FallsBackToCachedPage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transport.RegisterResponder(http.MethodGet, upstream+"/",
		httpmock.NewStringResponder(http.StatusOK, `<html>app</html>`))

	nav := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		return req
	}
	require.Equal(t, http.StatusOK, f.icpt.Handle(nav()).StatusCode)

	f.transport.Reset()
	resp := f.icpt.Handle(nav())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>app</html>", readAll(t, resp))
}

func TestDefault_DoesNotQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.icpt.Handle(httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x")))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Zero(t, f.store.CountPendingOperations(t.Context()))
}

func TestWriteResponse_StripsHopHeaders(t *testing.T) {
	t.Parallel()
	resp := &http.Response{
		StatusCode: http.StatusCreated,
		Header: http.Header{
			"Connection":   {"X-Trace"},
			"X-Trace":      {"1"},
			"Content-Type": {"application/json"},
			"Keep-Alive":   {"timeout=5"},
		},
		Body: io.NopCloser(strings.NewReader(`{}`)),
	}
	rec := httptest.NewRecorder()

	require.NoError(t, WriteResponse(rec, resp))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("X-Trace"))
	assert.Empty(t, rec.Header().Get("Keep-Alive"))
	assert.Equal(t, `{}`, rec.Body.String())
}
