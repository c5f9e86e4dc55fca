// Package metrics exposes Prometheus collectors for fetching, extraction and aggregation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the product finder.
type Metrics struct {
	Registry        *prometheus.Registry
	FetchAttempts   *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	EscalationTotal *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	ListingsTotal   *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finder_fetch_attempts_total",
			Help: "Fetch attempts by source, mode (http or browser) and outcome.",
		},
		[]string{"source", "mode", "outcome"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finder_fetch_duration_seconds",
			Help:    "Latency of single fetch attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	cache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finder_cache_lookups_total",
			Help: "Disk cache lookups by result (hit, miss, stale).",
		},
		[]string{"result"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finder_retries_total",
			Help: "Fetch retries by source.",
		},
		[]string{"source"},
	)
	escalations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finder_browser_escalations_total",
			Help: "Switches from plain HTTP to headless browser rendering.",
		},
		[]string{"source"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finder_errors_total",
			Help: "Fetch errors by type.",
		},
		[]string{"error_type"},
	)
	listings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finder_listings_total",
			Help: "Listings produced by source and kind (real or synthetic).",
		},
		[]string{"source", "kind"},
	)
	searchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finder_search_duration_seconds",
			Help:    "End-to-end aggregation latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	registry.MustRegister(attempts, fetchDuration, cache, retries, escalations, errorsTotal, listings, searchDuration)

	return &Metrics{
		Registry:        registry,
		FetchAttempts:   attempts,
		FetchDuration:   fetchDuration,
		CacheLookups:    cache,
		RetriesTotal:    retries,
		EscalationTotal: escalations,
		ErrorsTotal:     errorsTotal,
		ListingsTotal:   listings,
		SearchDuration:  searchDuration,
	}
}

// IncFetch counts one fetch attempt.
func (m *Metrics) IncFetch(source, mode, outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(source, mode, outcome).Inc()
}

// ObserveFetch records the latency of one attempt.
func (m *Metrics) ObserveFetch(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// IncCache counts a cache lookup result.
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries(source string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(source).Inc()
}

// IncEscalation counts a browser escalation.
func (m *Metrics) IncEscalation(source string) {
	if m == nil {
		return
	}
	m.EscalationTotal.WithLabelValues(source).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddListings adds n listings of the given kind for source.
func (m *Metrics) AddListings(source, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ListingsTotal.WithLabelValues(source, kind).Add(float64(n))
}

// ObserveSearch records an aggregation duration.
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(d.Seconds())
}
