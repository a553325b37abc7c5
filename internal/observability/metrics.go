package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WindowCounter reports outcome counts over a sliding window. *traffic.Tracker satisfies it.
type WindowCounter interface {
	RequestCount(window time.Duration) int
	DenialCount(window time.Duration) int
}

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Probability reports produced, by dataset mode.
	EstimatesTotal *prometheus.CounterVec

	// Per-city estimate count (allow-list; others go to "other").
	EstimatesByLocationTotal *prometheus.CounterVec

	// Comparison requests served.
	ComparisonsTotal prometheus.Counter

	// Chat replies by matched rule. Watch for: share of "unknown" replies.
	ChatResponsesTotal *prometheus.CounterVec

	// Sampled metric probabilities by metric kind.
	MetricSamplesTotal *prometheus.CounterVec

	// Nominatim call rate by operation and status.
	GeocodeCallsTotal *prometheus.CounterVec

	// Nominatim latency. Watch for: p95 > 2s (upstream slow, public instance throttling).
	GeocodeDuration *prometheus.HistogramVec

	// Retry attempts for geocoding. Watch for: high retries = unstable upstream.
	GeocodeRetriesTotal prometheus.Counter

	// Lookups served by joining an identical in-flight call.
	GeocodeCoalescedTotal prometheus.Counter

	// Geocoding failures by category.
	GeocodeErrorsTotal *prometheus.CounterVec

	// Breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedMu     sync.RWMutex
	trackedCities map[string]struct{}

	trafficGaugesOnce sync.Once
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	m.EstimatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimatesTotal",
			Help: "Total number of probability reports produced",
		},
		[]string{"datasetMode"},
	)
	m.EstimatesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimatesByLocationTotal",
			Help: "Probability reports by city (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	m.ComparisonsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comparisonsTotal",
			Help: "Total number of location comparisons",
		},
	)
	m.ChatResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatResponsesTotal",
			Help: "Chat replies by matched rule",
		},
		[]string{"rule"},
	)
	m.MetricSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricSamplesTotal",
			Help: "Sampled metric probabilities by metric kind",
		},
		[]string{"kind"},
	)
	m.GeocodeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocodeCallsTotal",
			Help: "Total number of Nominatim calls",
		},
		[]string{"operation", "status"},
	)
	m.GeocodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocodeDurationSeconds",
			Help:    "Nominatim latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)
	m.GeocodeRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geocodeRetriesTotal",
			Help: "Total number of retry attempts for geocoding calls",
		},
	)
	m.GeocodeCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geocodeCoalescedTotal",
			Help: "Geocoding lookups that joined an identical in-flight call",
		},
	)
	m.GeocodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocodeErrorsTotal",
			Help: "Geocoding failures by category",
		},
		[]string{"category"},
	)
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	m.RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	m.registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.EstimatesTotal, m.EstimatesByLocationTotal, m.ComparisonsTotal,
		m.ChatResponsesTotal, m.MetricSamplesTotal,
		m.GeocodeCallsTotal, m.GeocodeDuration, m.GeocodeRetriesTotal,
		m.GeocodeCoalescedTotal, m.GeocodeErrorsTotal,
		m.CircuitBreakerState,
		m.RateLimitDeniedTotal,
	)
	return m
}

// RegisterTrafficGauges registers load and rejects gauges read from counter.
// Call from main after config load with the overload window. Later calls are no-ops.
func (m *Metrics) RegisterTrafficGauges(counter WindowCounter, window time.Duration) {
	m.trafficGaugesOnce.Do(func() {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(counter.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(counter.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities increment "other".
func (m *Metrics) SetTrackedCities(cities []string) {
	m.trackedMu.Lock()
	defer m.trackedMu.Unlock()
	m.trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		m.trackedCities[normalizeCity(c)] = struct{}{}
	}
}

// RecordEstimate records one probability report for city under mode.
func (m *Metrics) RecordEstimate(city, mode string) {
	m.EstimatesTotal.WithLabelValues(mode).Inc()
	m.EstimatesByLocationTotal.WithLabelValues(m.cityLabel(city)).Inc()
}

func (m *Metrics) cityLabel(city string) string {
	c := normalizeCity(city)
	m.trackedMu.RLock()
	_, ok := m.trackedCities[c] // nil map read is safe in Go
	m.trackedMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Handler returns an http.Handler that serves application and runtime metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
