package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveResult(t *testing.T) {
	m := NewMetrics()

	m.ObserveResult("http", "success", 2048, 4096)
	m.ObserveResult("http", "success", 2048, 4096)
	m.ObserveResult("ws", "invalid_audio_data", 100, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("http", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("ws", "invalid_audio_data")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.PayloadBytes))
}

func TestMetrics_Connections(t *testing.T) {
	m := NewMetrics()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// two instances must not collide on registration
	first := NewMetrics()
	second := NewMetrics()

	first.ObserveStage("decode", 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(first.StageDuration))
	assert.Equal(t, 0, testutil.CollectAndCount(second.StageDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveResult("http", "success", 10, 20)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `wavebridge_requests_total{outcome="success",transport="http"} 1`)
}
