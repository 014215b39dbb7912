package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects router metrics. All methods are nil-safe so components
// can run without a collector in tests.
type Metrics struct {
	requests           *prometheus.CounterVec
	cacheEvents        *prometheus.CounterVec
	circuitTransitions *prometheus.CounterVec
	spend              *prometheus.CounterVec
	latency            *prometheus.HistogramVec
}

// NewMetrics registers the router collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "requests_total",
			Help:      "Upstream attempts by model and terminal outcome.",
		}, []string{"model", "outcome"}),
		cacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "cache_events_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		circuitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions by model.",
		}, []string{"model", "state"}),
		spend: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "spend_usd_total",
			Help:      "Accumulated upstream spend in USD by model.",
		}, []string{"model"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "attempt_duration_seconds",
			Help:      "Upstream attempt latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"model"}),
	}
}

// ObserveAttempt records one terminal per-model outcome.
func (m *Metrics) ObserveAttempt(model, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(model, outcome).Inc()
	if duration > 0 {
		m.latency.WithLabelValues(model).Observe(duration.Seconds())
	}
}

// CacheEvent records a cache lookup result ("hit" or "miss").
func (m *Metrics) CacheEvent(result string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(result).Inc()
}

// CircuitTransition records a breaker state change.
func (m *Metrics) CircuitTransition(model, state string) {
	if m == nil {
		return
	}
	m.circuitTransitions.WithLabelValues(model, state).Inc()
}

// AddSpend accumulates upstream spend for a model.
func (m *Metrics) AddSpend(model string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.spend.WithLabelValues(model).Add(usd)
}
