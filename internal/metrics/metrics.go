package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harun/chatguard/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatguard"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter
	SessionsEvictedTotal *prometheus.CounterVec
	InteractionsTotal    *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	SweepRemovedTotal    prometheus.Counter

	// Gateway metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of sessions currently stored",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of sessions created",
			},
		),
		SessionsEvictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_evicted_total",
				Help:      "Total number of sessions removed, by cause",
			},
			[]string{"cause"},
		),
		InteractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interactions_total",
				Help:      "Total number of interaction decisions, by result",
			},
			[]string{"result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of expired session sweeps in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		SweepRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_removed_total",
				Help:      "Total number of sessions removed by the sweeper",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of gateway requests",
			},
			[]string{"route", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of gateway requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsEvictedTotal,
		m.InteractionsTotal,
		m.SweepDuration,
		m.SweepRemovedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
}

// RecordSessionCreated implements session.Recorder.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreatedTotal.Inc()
}

// RecordEviction implements session.Recorder.
func (m *Metrics) RecordEviction(cause string, count int) {
	m.SessionsEvictedTotal.WithLabelValues(cause).Add(float64(count))
}

// RecordInteraction implements session.Recorder. Accepted interactions are
// labelled "accepted"; rejections use the rejection reason.
func (m *Metrics) RecordInteraction(reason session.Reason) {
	result := string(reason)
	if reason == session.ReasonNone {
		result = "accepted"
	}
	m.InteractionsTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions implements session.Recorder.
func (m *Metrics) SetActiveSessions(count int) {
	m.SessionsActive.Set(float64(count))
}

// RecordSweep implements session.Recorder.
func (m *Metrics) RecordSweep(duration time.Duration, removed int) {
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepRemovedTotal.Add(float64(removed))
}

// ObserveRequest records one gateway request.
func (m *Metrics) ObserveRequest(route string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ session.Recorder = (*Metrics)(nil)
