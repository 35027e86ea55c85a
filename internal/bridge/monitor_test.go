package bridge

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

func monitorSettings() *conf.Settings {
	s := conf.Defaults()
	s.Upstream = "http://upstream.test"
	s.Connectivity.ProbeInterval = conf.Duration(10 * time.Millisecond)
	return s
}

func TestMonitor_Probe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		responder httpmock.Responder
		want      bool
	}{
		{"healthy", httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`), true},
		{"server error", httpmock.NewStringResponder(http.StatusServiceUnavailable, ``), false},
		{"unreachable", httpmock.NewErrorResponder(errors.New("dial tcp: connection refused")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder(http.MethodGet, "http://upstream.test/api/health", tt.responder)
			b, _, _, _ := newBridge(t, 0)

			m := NewMonitor(monitorSettings(), &http.Client{Transport: transport}, b, logger.Discard())
			assert.Equal(t, tt.want, m.Check(t.Context()))
			assert.Equal(t, tt.want, b.Online())
		})
	}
}

func TestMonitor_RunDetectsRecovery(t *testing.T) {
	t.Parallel()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "http://upstream.test/api/health",
		httpmock.NewErrorResponder(errors.New("offline")))
	b, syncer, _, _ := newBridge(t, 3)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	m := NewMonitor(monitorSettings(), &http.Client{Transport: transport}, b, logger.Discard())
	go func() { done <- m.Run(ctx) }()

	require.Never(t, b.Online, 50*time.Millisecond, 5*time.Millisecond)

	transport.RegisterResponder(http.MethodGet, "http://upstream.test/api/health",
		httpmock.NewStringResponder(http.StatusOK, `ok`))
	require.Eventually(t, b.Online, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
