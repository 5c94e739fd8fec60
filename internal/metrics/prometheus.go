package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the audio bridge
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	PayloadBytes  *prometheus.HistogramVec

	// WebSocket metrics
	ActiveConnections prometheus.Gauge
}

// NewMetrics creates all metrics on a dedicated registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavebridge_requests_total",
			Help: "Total number of audio messages processed, by transport and outcome",
		}, []string{"transport", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wavebridge_stage_duration_seconds",
			Help:    "Time spent in each processing stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"stage"}),
		PayloadBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wavebridge_payload_bytes",
			Help:    "Size of audio payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to 2MB
		}, []string{"direction"}),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wavebridge_websocket_connections",
			Help: "Current number of open WebSocket connections",
		}),
	}
}

// ObserveStage implements usecase.Observer
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveResult implements usecase.Observer
func (m *Metrics) ObserveResult(transport, outcome string, inboundBytes, outboundBytes int) {
	m.Requests.WithLabelValues(transport, outcome).Inc()
	if inboundBytes > 0 {
		m.PayloadBytes.WithLabelValues("inbound").Observe(float64(inboundBytes))
	}
	if outboundBytes > 0 {
		m.PayloadBytes.WithLabelValues("outbound").Observe(float64(outboundBytes))
	}
}

// ConnectionOpened records a new WebSocket connection
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Inc()
}

// ConnectionClosed records a closed WebSocket connection
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Dec()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
