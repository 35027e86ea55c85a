// Package gateway assembles the offline gateway: the durable store, the
// response caches, the interceptor, the sync engine and the client bridge,
// served behind one Echo server.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/TechinMama/RecipeForADisaster/internal/bridge"
	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/datastore"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/httpcache"
	"github.com/TechinMama/RecipeForADisaster/internal/interceptor"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
	"github.com/TechinMama/RecipeForADisaster/internal/syncengine"
	"github.com/TechinMama/RecipeForADisaster/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Gateway owns every component of a running gateway.
type Gateway struct {
	settings *conf.Settings
	log      logger.Logger

	client      *http.Client
	store       *datastore.Store
	caches      *httpcache.Storage
	metrics     *metrics.Metrics
	interceptor *interceptor.Interceptor
	engine      *syncengine.Engine
	bus         *bridge.EventBus
	bridge      *bridge.Bridge
	hub         *bridge.Hub
	monitor     *bridge.Monitor
	echo        *echo.Echo
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the upstream client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// New wires a gateway from settings. A store that cannot be opened is logged
// and the gateway runs without it: writes are still acknowledged and reads
// fall back to caches.
func New(ctx context.Context, settings *conf.Settings, log logger.Logger, opts ...Option) (*Gateway, error) {
	if log == nil {
		log = logger.Discard()
	}
	g := &Gateway{
		settings: settings,
		log:      log.Module("gateway"),
		client:   upstreamClient(settings),
	}
	for _, opt := range opts {
		opt(g)
	}

	if settings.Metrics.Enabled {
		m, err := metrics.New()
		if err != nil {
			return nil, errors.New(err).Component("gateway").Category(errors.CategoryConfiguration).Build()
		}
		g.metrics = m
	}

	store, err := datastore.OpenStore(ctx, settings, log)
	if err != nil {
		g.log.Error("durable store unavailable, continuing without it", logger.Error(err))
	} else {
		g.store = store
	}

	cacheDir := ""
	if settings.Cache.Snapshots {
		cacheDir = settings.Store.CacheDir()
	}
	g.caches = httpcache.New(cacheDir, log)

	g.bus = bridge.NewEventBus()
	g.engine = syncengine.New(g.store, g.client, log, syncengine.WithMetrics(g.metrics))
	g.bridge = bridge.New(g.store, g.engine, g.bus, log,
		bridge.WithActivator(g.Activate),
		bridge.WithManualSyncLimit(settings.Bridge.ManualSyncPerMinute),
		bridge.WithMetrics(g.metrics))
	g.engine.SetNotifier(g.bridge)
	g.hub = bridge.NewHub(g.bridge, g.bus, log)
	g.monitor = bridge.NewMonitor(settings, g.client, g.bridge, log)

	icptOpts := []interceptor.Option{
		interceptor.WithMetrics(g.metrics),
		interceptor.WithOnQueued(g.bridge.RequestSync),
	}
	if g.store != nil {
		icptOpts = append(icptOpts, interceptor.WithHooks(
			interceptor.MirrorHook(g.store, settings.Mirror.Patterns, g.metrics, log)))
		g.interceptor = interceptor.New(settings, g.client, g.caches, g.store, log, icptOpts...)
	} else {
		g.interceptor = interceptor.New(settings, g.client, g.caches, nil, log, icptOpts...)
	}

	g.echo = g.newEcho()
	return g, nil
}

// Install restores cache snapshots and precaches the static assets. Failures
// are logged, never fatal.
func (g *Gateway) Install(ctx context.Context) {
	if err := g.caches.Load(); err != nil {
		g.log.Warn("loading cache snapshots failed", logger.Error(err))
	}
	if err := g.interceptor.Precache(ctx, g.settings.Cache.Precache); err != nil {
		g.log.Error("error during install", logger.Error(err))
	}
	g.metrics.SetPending(g.store.CountPendingOperations(ctx))
}

// Activate deletes caches left over from other versions.
func (g *Gateway) Activate(_ context.Context) {
	removed := g.caches.Prune(g.settings.Cache.Names()...)
	g.log.Info("gateway activated", logger.Int("removed_caches", len(removed)))
}

// Handler returns the HTTP handler serving the gateway.
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

// Bridge exposes the client bridge.
func (g *Gateway) Bridge() *bridge.Bridge {
	return g.bridge
}

// Run installs, activates and serves until ctx is done, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	g.Install(ctx)
	g.Activate(ctx)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		g.log.Info("gateway listening",
			logger.String("listen", g.settings.Listen),
			logger.String("upstream", g.settings.Upstream))
		if err := g.echo.Start(g.settings.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(err).Component("gateway").Category(errors.CategoryConfiguration).
				Context("listen", g.settings.Listen).Build()
		}
		return nil
	})
	grp.Go(func() error {
		return g.monitor.Run(gctx)
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return g.echo.Shutdown(shutdownCtx)
	})

	err := grp.Wait()
	g.Close()
	return err
}

// Close stops background work and persists state. Running drains finish first.
func (g *Gateway) Close() {
	g.hub.Close()
	g.bridge.Wait()
	g.bus.Stop()
	if err := g.caches.Save(); err != nil {
		g.log.Warn("saving cache snapshots failed", logger.Error(err))
	}
	if err := g.store.Close(); err != nil {
		g.log.Warn("closing store failed", logger.Error(err))
	}
	telemetry.Flush(2 * time.Second)
	g.log.Info("gateway stopped")
}

// upstreamClient relays upstream redirects to the caller instead of following them.
func upstreamClient(settings *conf.Settings) *http.Client {
	return &http.Client{
		Timeout: settings.UpstreamTimeout.Std(),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SyncOnce opens the store and drains the queue once, without serving. The
// upstream health endpoint is probed first; while it is unreachable nothing is
// replayed and the queue is left as is.
func SyncOnce(ctx context.Context, settings *conf.Settings, log logger.Logger, opts ...Option) (syncengine.Result, error) {
	if log == nil {
		log = logger.Discard()
	}
	g := &Gateway{client: upstreamClient(settings)}
	for _, opt := range opts {
		opt(g)
	}

	if !bridge.NewMonitor(settings, g.client, nil, log).Probe(ctx) {
		return syncengine.Result{}, errors.New(bridge.ErrOffline).
			Component("gateway").
			Category(errors.CategoryNetwork).
			Context("upstream", settings.Upstream).
			Build()
	}

	store, err := datastore.OpenStore(ctx, settings, log)
	if err != nil {
		return syncengine.Result{}, err
	}
	defer func() { _ = store.Close() }()

	return syncengine.New(store, g.client, log).SyncPendingOperations(ctx), nil
}
