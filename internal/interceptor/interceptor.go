// Package interceptor sits between the application and the upstream for every
// request. It chooses a strategy per request: network first with offline
// queuing for the API, cache first for static assets, and cache then network
// for everything else.
package interceptor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore"
	"github.com/TechinMama/RecipeForADisaster/internal/httpcache"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
)

// Strategy is how a request is answered.
type Strategy string

const (
	StrategyAPI        Strategy = "api"
	StrategyStatic     Strategy = "static"
	StrategyNavigation Strategy = "navigation"
	StrategyDefault    Strategy = "default"
)

// HTTPDoer performs upstream requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Store is the part of the durable store the interceptor uses.
type Store interface {
	EnqueueOperation(ctx context.Context, in datastore.OperationInput) (uint, error)
	GetAllCachedEntities(ctx context.Context) []json.RawMessage
	UpsertCachedEntities(ctx context.Context, items []json.RawMessage) error
}

// Interceptor answers intercepted requests. It is safe for concurrent use.
type Interceptor struct {
	settings *conf.Settings
	client   HTTPDoer
	caches   *httpcache.Storage
	store    Store
	metrics  *metrics.Metrics
	log      logger.Logger
	hooks    []Hook
	onQueued func(id uint, operation string)
	now      func() time.Time
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Interceptor) { i.metrics = m }
}

// WithHooks registers post-success hooks for API GET responses.
func WithHooks(hooks ...Hook) Option {
	return func(i *Interceptor) { i.hooks = append(i.hooks, hooks...) }
}

// WithOnQueued sets a callback invoked after an operation was queued.
func WithOnQueued(fn func(id uint, operation string)) Option {
	return func(i *Interceptor) { i.onQueued = fn }
}

// WithClock overrides the clock used for queue timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

// New creates an interceptor. store may be nil when the durable store could
// not be opened; writes are then still acknowledged but not kept.
func New(settings *conf.Settings, client HTTPDoer, caches *httpcache.Storage, store Store, log logger.Logger, opts ...Option) *Interceptor {
	if log == nil {
		log = logger.Discard()
	}
	i := &Interceptor{
		settings: settings,
		client:   client,
		caches:   caches,
		store:    store,
		log:      log.Module("interceptor"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Classify picks the strategy for req.
func (i *Interceptor) Classify(req *http.Request) Strategy {
	if strings.HasPrefix(req.URL.Path, i.settings.APIPrefix) {
		return StrategyAPI
	}
	switch req.Header.Get("Sec-Fetch-Dest") {
	case "script", "style", "image", "font":
		return StrategyStatic
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return StrategyNavigation
	}
	return StrategyDefault
}

// Handle answers req. It always returns a response, never nil.
func (i *Interceptor) Handle(req *http.Request) (resp *http.Response) {
	strategy := i.Classify(req)
	defer func() {
		if r := recover(); r != nil {
			i.log.Error("interceptor panic recovered",
				logger.String("strategy", string(strategy)),
				logger.String("path", req.URL.Path),
				logger.Any("panic", r))
			i.metrics.RecordRequest(string(strategy), metrics.OutcomeError)
			resp = offlineResponse(req)
		}
	}()

	switch strategy {
	case StrategyAPI:
		return i.handleAPI(req)
	case StrategyStatic:
		return i.handleStatic(req)
	case StrategyNavigation:
		return i.handleCacheThenNetwork(req, strategy, i.settings.Cache.DynamicCacheName())
	default:
		return i.handleCacheThenNetwork(req, strategy, "")
	}
}
