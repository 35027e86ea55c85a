// Package bridge connects running application clients to the gateway: it
// answers control messages, pushes sync and connectivity notifications, and
// starts queue drains when the upstream comes back.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
	"github.com/TechinMama/RecipeForADisaster/internal/syncengine"
)

// Reasons a manual sync is refused.
var (
	ErrOffline      = errors.NewStd("upstream is offline")
	ErrSyncInFlight = errors.NewStd("a sync is already in progress")
	ErrRateLimited  = errors.NewStd("too many sync requests")
)

// lastResultTTL is how long a finished sync stays on the indicator.
const lastResultTTL = 5 * time.Second

// PendingCounter reports queue depth.
type PendingCounter interface {
	CountPendingOperations(ctx context.Context) int
}

// Syncer drains the queue.
type Syncer interface {
	SyncPendingOperations(ctx context.Context) syncengine.Result
}

// Bridge tracks connectivity and sync state and answers control messages.
type Bridge struct {
	store    PendingCounter
	syncer   Syncer
	bus      *EventBus
	limiter  *rate.Limiter
	activate func(ctx context.Context)
	metrics  *metrics.Metrics
	log      logger.Logger

	online     atomic.Bool
	changed    atomic.Bool
	inFlight   atomic.Bool
	syncWanted atomic.Bool

	mu           sync.Mutex
	lastResult   *syncengine.Result
	lastResultAt time.Time

	wg sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithActivator sets what SkipWaiting runs.
func WithActivator(fn func(ctx context.Context)) Option {
	return func(b *Bridge) { b.activate = fn }
}

// WithManualSyncLimit allows perMinute manual triggers per minute, with a
// burst of one. Zero or less disables the limit.
func WithManualSyncLimit(perMinute int) Option {
	return func(b *Bridge) {
		if perMinute <= 0 {
			b.limiter = nil
			return
		}
		b.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a bridge. It starts offline until the first probe says otherwise.
func New(store PendingCounter, syncer Syncer, bus *EventBus, log logger.Logger, opts ...Option) *Bridge {
	if log == nil {
		log = logger.Discard()
	}
	b := &Bridge{
		store:  store,
		syncer: syncer,
		bus:    bus,
		log:    log.Module("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle processes one control message. Only GetOfflineStatus produces a
// reply. A nil message is ignored.
func (b *Bridge) Handle(ctx context.Context, msg Message) (*StatusReply, error) {
	switch msg.(type) {
	case SkipWaiting:
		if b.activate != nil {
			b.activate(ctx)
		}
		return nil, nil
	case GetOfflineStatus:
		reply := b.Status(ctx)
		return &reply, nil
	case TriggerSync:
		return nil, b.TriggerSync()
	default:
		return nil, nil
	}
}

// Status reports connectivity and queue depth.
func (b *Bridge) Status(ctx context.Context) StatusReply {
	return StatusReply{
		Offline:           !b.online.Load(),
		PendingOperations: b.store.CountPendingOperations(ctx),
	}
}

// Online reports the last known connectivity.
func (b *Bridge) Online() bool {
	return b.online.Load()
}

// Syncing reports whether a drain is running.
func (b *Bridge) Syncing() bool {
	return b.inFlight.Load()
}

// Indicator snapshots the state behind the status line.
func (b *Bridge) Indicator(ctx context.Context) Indicator {
	ind := Indicator{
		Online:  b.online.Load(),
		Syncing: b.inFlight.Load(),
		Pending: b.store.CountPendingOperations(ctx),
		Changed: b.changed.Load(),
	}
	b.mu.Lock()
	if b.lastResult != nil && time.Since(b.lastResultAt) < lastResultTTL {
		r := *b.lastResult
		ind.LastResult = &r
	}
	b.mu.Unlock()
	return ind
}

// TriggerSync starts a drain on behalf of a user. It is refused while offline,
// while a drain runs, or when the rate limit is exhausted.
func (b *Bridge) TriggerSync() error {
	if !b.online.Load() {
		b.log.Info("manual sync refused", logger.String("reason", "offline"))
		return ErrOffline
	}
	if b.inFlight.Load() {
		b.log.Info("manual sync refused", logger.String("reason", "in flight"))
		return ErrSyncInFlight
	}
	if b.limiter != nil && !b.limiter.Allow() {
		b.log.Info("manual sync refused", logger.String("reason", "rate limited"))
		return ErrRateLimited
	}
	if !b.startSync("manual") {
		return ErrSyncInFlight
	}
	return nil
}

// RequestSync records that a write was queued, so the next probe that finds
// the upstream reachable drains the queue.
func (b *Bridge) RequestSync(id uint, operation string) {
	b.syncWanted.Store(true)
	b.log.Debug("sync requested", logger.Uint64("id", uint64(id)), logger.String("operation", operation))
}

// SetOnline records a probe result. Going online starts a drain when anything
// is pending; going offline only notifies clients.
func (b *Bridge) SetOnline(ctx context.Context, online bool) {
	was := b.online.Swap(online)
	b.metrics.SetOnline(online)

	if was == online {
		if online && b.syncWanted.Load() {
			b.startSync("requested")
		}
		return
	}

	b.changed.Store(true)
	pending := b.store.CountPendingOperations(ctx)
	b.metrics.SetPending(pending)
	if online {
		b.log.Info("upstream back online", logger.Int("pending", pending))
		if pending > 0 || b.syncWanted.Load() {
			b.startSync("reconnect")
		}
	} else {
		b.log.Warn("upstream offline", logger.Int("pending", pending))
	}
	b.publishConnectivity(ctx, pending)
}

func (b *Bridge) publishConnectivity(ctx context.Context, pending int) {
	if b.bus == nil {
		return
	}
	notice := ConnectivityNotice{
		Type:              TypeConnectivityChange,
		Offline:           !b.online.Load(),
		PendingOperations: pending,
		Status:            StatusText(b.Indicator(ctx)),
	}
	b.bus.Publish(&Event{Type: TypeConnectivityChange, Payload: notice})
}

// startSync runs one drain in the background unless one is already running.
// Drains are not cancellable; each runs over the whole queue.
func (b *Bridge) startSync(reason string) bool {
	if !b.inFlight.CompareAndSwap(false, true) {
		return false
	}
	b.syncWanted.Store(false)
	b.log.Info("starting sync", logger.String("reason", reason))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.inFlight.Store(false)
		b.syncer.SyncPendingOperations(context.Background())
	}()
	return true
}

// SyncCompleted implements syncengine.Notifier.
func (b *Bridge) SyncCompleted(result syncengine.Result) {
	b.mu.Lock()
	r := result
	b.lastResult = &r
	b.lastResultAt = time.Now()
	b.mu.Unlock()

	if b.bus == nil {
		return
	}
	b.bus.Publish(&Event{
		Type: TypeSyncCompleted,
		Payload: SyncCompletedNotice{
			Type:       TypeSyncCompleted,
			Successful: result.Successful,
			Failed:     result.Failed,
			Total:      result.Total,
		},
	})
}

// Wait blocks until running drains finish.
func (b *Bridge) Wait() {
	b.wg.Wait()
}
