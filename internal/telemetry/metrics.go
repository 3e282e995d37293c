// Package telemetry exposes Prometheus metrics for the fetch pipeline:
// per-provider call outcomes and latency, cache behavior by tier, retry and
// fallback activity, and circuit breaker state.
package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded against FetchTotal.
const (
	OutcomeSuccess      = "success"
	OutcomeNotAvailable = "not_available"
	OutcomeRateLimited  = "rate_limited"
	OutcomeError        = "error"
)

// Cache tiers recorded against CacheHits / CacheMisses.
const (
	TierRedis  = "redis"
	TierMemory = "memory"
)

// Metrics holds every Prometheus collector the service registers.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	Retries     *prometheus.CounterVec
	Fallbacks   *prometheus.CounterVec
	Resolutions *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New builds and registers all collectors on a private registry, so tests
// and repeated construction never collide on the global default.
func New() *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econoflow_fetch_total",
				Help: "Provider fetches by outcome",
			},
			[]string{"provider", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "econoflow_fetch_duration_seconds",
				Help:    "End-to-end provider fetch latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econoflow_cache_hits_total",
				Help: "Cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econoflow_cache_misses_total",
				Help: "Cache misses by tier",
			},
			[]string{"tier"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econoflow_retries_total",
				Help: "Retry attempts by provider",
			},
			[]string{"provider"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econoflow_fallbacks_total",
				Help: "Fallback hops by original and substitute provider",
			},
			[]string{"from", "to"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "econoflow_resolutions_total",
				Help: "Indicator resolutions by winning source",
			},
			[]string{"source"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "econoflow_breaker_state",
				Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FetchTotal,
		m.FetchDuration,
		m.CacheHits,
		m.CacheMisses,
		m.Retries,
		m.Fallbacks,
		m.Resolutions,
		m.BreakerState,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordFetch counts one provider call and its latency.
func (m *Metrics) RecordFetch(provider, outcome string, elapsed time.Duration) {
	m.FetchTotal.WithLabelValues(provider, outcome).Inc()
	m.FetchDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordCacheHit counts a hit on the given tier.
func (m *Metrics) RecordCacheHit(tier string) {
	m.CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss counts a miss on the given tier.
func (m *Metrics) RecordCacheMiss(tier string) {
	m.CacheMisses.WithLabelValues(tier).Inc()
}

// RecordRetry counts one retry attempt against a provider.
func (m *Metrics) RecordRetry(provider string) {
	m.Retries.WithLabelValues(provider).Inc()
}

// RecordFallback counts one fallback hop.
func (m *Metrics) RecordFallback(from, to string) {
	m.Fallbacks.WithLabelValues(from, to).Inc()
}

// RecordResolution counts a resolver hit by winning source
// (database, translator, catalog, fts, learned, none).
func (m *Metrics) RecordResolution(source string) {
	m.Resolutions.WithLabelValues(source).Inc()
}

// SetBreakerState maps a breaker state name onto the gauge.
func (m *Metrics) SetBreakerState(provider, state string) {
	m.BreakerState.WithLabelValues(provider).Set(breakerStateValue(state))
}

func breakerStateValue(state string) float64 {
	switch strings.ToLower(state) {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

// FetchTimer times one provider call and records it on Stop.
type FetchTimer struct {
	metrics  *Metrics
	provider string
	start    time.Time
}

// StartFetch begins timing a provider call.
func (m *Metrics) StartFetch(provider string) *FetchTimer {
	return &FetchTimer{metrics: m, provider: provider, start: time.Now()}
}

// Stop records the call with its outcome.
func (t *FetchTimer) Stop(outcome string) {
	t.metrics.RecordFetch(t.provider, outcome, time.Since(t.start))
}
