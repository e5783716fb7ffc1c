package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parley-go/parley/pkg/core"
)

// Metrics holds the Prometheus instruments for the chat server. All
// instruments live in a private registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	providerAttempts *prometheus.CounterVec
	degradedReplies  prometheus.Counter

	liveSessionsActive prometheus.Gauge
	liveSessionsTotal  prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by path and status code.",
		}, []string{"path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parley",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		providerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "provider_attempts_total",
			Help:      "Completion attempts against upstream providers, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		degradedReplies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "degraded_replies_total",
			Help:      "Turns answered by the canned degraded reply after every tier failed.",
		}),
		liveSessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Name:      "live_sessions_active",
			Help:      "Currently connected live voice sessions.",
		}),
		liveSessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "live_sessions_total",
			Help:      "Live voice sessions accepted since start.",
		}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CountDegradedReply records one turn answered by the canned fallback. Wired
// into the engine as its degraded hook.
func (m *Metrics) CountDegradedReply() {
	m.degradedReplies.Inc()
}

func (m *Metrics) observeRequest(path string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *Metrics) liveSessionOpened() {
	m.liveSessionsTotal.Inc()
	m.liveSessionsActive.Inc()
}

func (m *Metrics) liveSessionClosed() {
	m.liveSessionsActive.Dec()
}

// InstrumentProvider wraps a provider so every attempt is counted with its
// outcome. The wrapped provider keeps the underlying name for log parity.
func (m *Metrics) InstrumentProvider(p core.Provider) core.Provider {
	return &instrumentedProvider{inner: p, metrics: m}
}

type instrumentedProvider struct {
	inner   core.Provider
	metrics *Metrics
}

func (p *instrumentedProvider) Name() string { return p.inner.Name() }

func (p *instrumentedProvider) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	text, err := p.inner.Complete(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.providerAttempts.WithLabelValues(p.inner.Name(), outcome).Inc()
	return text, err
}
