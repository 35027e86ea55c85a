package interceptor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
	"github.com/TechinMama/RecipeForADisaster/internal/httpcache"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
)

func isOK(status int) bool {
	return status >= 200 && status < 300
}

// handleAPI tries the upstream first. On success GET responses are cached and
// handed to hooks; on network failure the request is answered from cache, the
// write queue, the entity mirror or a 503, in that order.
func (i *Interceptor) handleAPI(req *http.Request) *http.Response {
	body, err := readBody(req)
	if err != nil {
		i.log.Warn("reading request body failed", logger.String("path", req.URL.Path), logger.Error(err))
	}

	resp, err := i.fetch(req, body)
	if err == nil {
		if req.Method == http.MethodGet && isOK(resp.StatusCode) {
			i.afterSuccess(req, resp)
		}
		i.metrics.RecordRequest(string(StrategyAPI), metrics.OutcomeNetwork)
		return resp
	}

	i.log.Info("network request failed, going offline",
		logger.String("method", req.Method),
		logger.String("path", req.URL.Path),
		logger.Error(err))

	if e, ok := i.caches.Match(i.cacheKeyRequest(req)); ok {
		i.metrics.RecordRequest(string(StrategyAPI), metrics.OutcomeCache)
		return e.Response(req)
	}

	if req.Method != http.MethodGet {
		i.queue(req, body)
		i.metrics.RecordRequest(string(StrategyAPI), metrics.OutcomeQueued)
		return queuedResponse(req)
	}

	if req.URL.Path == i.settings.Mirror.CollectionPath && i.store != nil {
		items := i.store.GetAllCachedEntities(context.WithoutCancel(req.Context()))
		i.metrics.RecordRequest(string(StrategyAPI), metrics.OutcomeEntityStore)
		return cachedCollectionResponse(req, items)
	}

	i.metrics.RecordRequest(string(StrategyAPI), metrics.OutcomeOffline)
	return offlineResponse(req)
}

// afterSuccess stores a copy of resp in the API cache and runs matching hooks.
// resp.Body is replaced so the caller still receives the full body.
func (i *Interceptor) afterSuccess(req *http.Request, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		i.log.Warn("reading upstream body failed", logger.String("path", req.URL.Path), logger.Error(err))
		return
	}

	i.caches.PutEntry(i.settings.Cache.APICacheName(), httpcache.Key(i.cacheKeyRequest(req)), &httpcache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	})

	ctx := context.WithoutCancel(req.Context())
	for _, h := range i.hooks {
		if !h.Matches(req.URL.Path) {
			continue
		}
		if err := h.Run(ctx, req, body); err != nil {
			i.log.Warn("post-success hook failed",
				logger.String("hook", h.Name),
				logger.String("path", req.URL.Path),
				logger.Error(err))
		}
	}
}

// OperationType tags a write by the resource it targets and its method.
func OperationType(method, path string) string {
	if strings.Contains(path, "/recipes") {
		switch method {
		case http.MethodPost:
			return entities.OperationCreateRecipe
		case http.MethodPut:
			return entities.OperationUpdateRecipe
		case http.MethodDelete:
			return entities.OperationDeleteRecipe
		}
	}
	return entities.OperationUnknown
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// queue persists a failed write. Failures are logged; the caller is
// acknowledged regardless.
func (i *Interceptor) queue(req *http.Request, body []byte) {
	headers := req.Header.Clone()
	removeHopHeaders(headers)

	in := datastore.OperationInput{
		URL:       i.upstreamURL(req),
		Method:    req.Method,
		Headers:   entities.HeadersFrom(headers),
		Timestamp: i.now().UnixMilli(),
		Operation: OperationType(req.Method, req.URL.Path),
	}
	if carriesBody(req.Method) {
		s := string(body)
		in.Body = &s
	}

	if i.store == nil {
		i.log.Error("operation dropped, store unavailable",
			logger.String("operation", in.Operation),
			logger.String("method", in.Method))
		return
	}

	id, err := i.store.EnqueueOperation(context.WithoutCancel(req.Context()), in)
	if err != nil {
		i.log.Error("queuing offline operation failed",
			logger.String("operation", in.Operation),
			logger.Error(err))
		return
	}

	i.log.Info("operation queued for offline sync",
		logger.Uint64("id", uint64(id)),
		logger.String("operation", in.Operation))
	i.metrics.RecordQueued(in.Operation)
	if i.onQueued != nil {
		i.onQueued(id, in.Operation)
	}
}
