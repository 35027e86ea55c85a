// Package metrics exposes Prometheus collectors for the offline gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Request outcomes.
const (
	OutcomeNetwork     = "network"
	OutcomeCache       = "cache"
	OutcomeQueued      = "queued"
	OutcomeEntityStore = "entity_store"
	OutcomeOffline     = "offline"
	OutcomeError       = "error"
)

// Metrics groups every gateway collector. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	pending          prometheus.Gauge
	queued           *prometheus.CounterVec
	syncRuns         prometheus.Counter
	syncOperations   *prometheus.CounterVec
	entitiesMirrored prometheus.Counter
	online           prometheus.Gauge
}

// New registers the gateway collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Intercepted requests by strategy and how they were answered.",
		}, []string{"strategy", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Write operations waiting for replay.",
		}),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_queued_total",
			Help:      "Write operations queued while the upstream was unreachable.",
		}, []string{"operation"}),
		syncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync drains that replayed at least one operation.",
		}),
		syncOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Replayed operations by result.",
		}, []string{"result"}),
		entitiesMirrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_mirrored_total",
			Help:      "Entities written to the local store from upstream responses.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_online",
			Help:      "1 when the last upstream probe succeeded.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.pending, m.queued, m.syncRuns, m.syncOperations, m.entitiesMirrored, m.online,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordRequest(strategy, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) RecordQueued(operation string) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(operation).Inc()
	m.pending.Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// RecordSync counts one drain and its per-operation results.
func (m *Metrics) RecordSync(successful, failed int) {
	if m == nil || successful+failed == 0 {
		return
	}
	m.syncRuns.Inc()
	m.syncOperations.WithLabelValues("success").Add(float64(successful))
	m.syncOperations.WithLabelValues("failure").Add(float64(failed))
}

func (m *Metrics) RecordMirrored(n int) {
	if m == nil {
		return
	}
	m.entitiesMirrored.Add(float64(n))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
