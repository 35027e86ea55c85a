package bridge

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

// HTTPDoer performs probe requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Monitor probes the upstream health endpoint and feeds the result to the bridge.
type Monitor struct {
	client   HTTPDoer
	url      string
	interval time.Duration
	timeout  time.Duration
	bridge   *Bridge
	log      logger.Logger
}

// NewMonitor creates a monitor for settings.Upstream + settings.Connectivity.HealthPath.
func NewMonitor(settings *conf.Settings, client HTTPDoer, b *Bridge, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.Discard()
	}
	return &Monitor{
		client:   client,
		url:      settings.UpstreamURL(settings.Connectivity.HealthPath, ""),
		interval: settings.Connectivity.ProbeInterval.Std(),
		timeout:  settings.Connectivity.ProbeTimeout.Std(),
		bridge:   b,
		log:      log.Module("connectivity"),
	}
}

// Probe reports whether the health endpoint answers with a 2xx status.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, http.NoBody)
	if err != nil {
		m.log.Error("building probe request failed", logger.Error(err))
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Debug("probe failed", logger.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Check probes once and reports the result to the bridge.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.Probe(ctx)
	m.bridge.SetOnline(ctx, online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("connectivity monitor started",
		logger.String("url", m.url),
		logger.Duration("interval", m.interval))

	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("connectivity monitor stopped")
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
