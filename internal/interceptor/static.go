package interceptor

import (
	"net/http"

	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
)

// handleStatic answers from any cache first, else fetches and stores ok
// responses in the static cache. A network failure is passed on as a 502.
func (i *Interceptor) handleStatic(req *http.Request) *http.Response {
	key := i.cacheKeyRequest(req)
	if e, ok := i.caches.Match(key); ok {
		i.metrics.RecordRequest(string(StrategyStatic), metrics.OutcomeCache)
		return e.Response(req)
	}

	resp, err := i.fetch(req, nil)
	if err != nil {
		i.log.Error("fetching static asset failed", logger.String("path", req.URL.Path), logger.Error(err))
		i.metrics.RecordRequest(string(StrategyStatic), metrics.OutcomeError)
		return badGatewayResponse(req, err)
	}
	if req.Method == http.MethodGet && isOK(resp.StatusCode) {
		if err := i.caches.Put(i.settings.Cache.StaticCacheName(), key, resp); err != nil {
			i.log.Warn("caching static asset failed", logger.String("path", req.URL.Path), logger.Error(err))
		}
	}
	i.metrics.RecordRequest(string(StrategyStatic), metrics.OutcomeNetwork)
	return resp
}

// handleCacheThenNetwork serves a cached response when one exists, else
// forwards the request. Nothing is queued. When storeIn names a cache, ok GET
// responses are kept there.
func (i *Interceptor) handleCacheThenNetwork(req *http.Request, strategy Strategy, storeIn string) *http.Response {
	key := i.cacheKeyRequest(req)
	if e, ok := i.caches.Match(key); ok {
		i.metrics.RecordRequest(string(strategy), metrics.OutcomeCache)
		return e.Response(req)
	}

	body, err := readBody(req)
	if err != nil {
		i.log.Warn("reading request body failed", logger.String("path", req.URL.Path), logger.Error(err))
	}
	resp, err := i.fetch(req, body)
	if err != nil {
		i.log.Warn("upstream unreachable", logger.String("path", req.URL.Path), logger.Error(err))
		i.metrics.RecordRequest(string(strategy), metrics.OutcomeError)
		return badGatewayResponse(req, err)
	}
	if storeIn != "" && req.Method == http.MethodGet && isOK(resp.StatusCode) {
		if err := i.caches.Put(storeIn, key, resp); err != nil {
			i.log.Warn("caching response failed", logger.String("path", req.URL.Path), logger.Error(err))
		}
	}
	i.metrics.RecordRequest(string(strategy), metrics.OutcomeNetwork)
	return resp
}
