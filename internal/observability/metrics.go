package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template. Watch for: sudden drops or 5xx spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per route. Watch for: p95/p99 regressions.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap call outcomes (success, client_error, server_error, rate_limited, error).
	WeatherAPICallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// OpenWeatherMap failures by category (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Weather lookups by city (allow-list; others go to "other").
	WeatherQueriesByCityTotal *prometheus.CounterVec

	// Severe-weather alerts returned to callers.
	WeatherAlertsTotal *prometheus.CounterVec

	// Snapshot reads by snapshot and result (success, not_found, error).
	SnapshotReadsTotal *prometheus.CounterVec

	// Malformed rows dropped while reading snapshots.
	SnapshotSkippedRowsTotal *prometheus.CounterVec

	// Items below the low-stock threshold as of the last low-stock query.
	InventoryLowStockItems prometheus.Gauge

	// Rate limit denials on the weather route.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Watcher poll iterations per target.
	WatcherPollsTotal *prometheus.CounterVec

	// Changes delivered per target.
	WatcherChangesTotal *prometheus.CounterVec

	// Failed reads of a changed file. Watch for: persistent non-zero rate (permissions, partial writes).
	WatcherReadErrorsTotal *prometheus.CounterVec

	// Failed sink deliveries per target and sink.
	WatcherSinkErrorsTotal *prometheus.CounterVec

	// Modification time of the last delivered change, unix seconds.
	WatcherLastChangeTimestamp *prometheus.GaugeVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "OpenWeatherMap failures by error category",
		},
		[]string{"category"},
	)
	WeatherQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByCityTotal",
			Help: "Weather queries by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	WeatherAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherAlertsTotal",
			Help: "Severe-weather alerts returned, by condition",
		},
		[]string{"condition"},
	)
	SnapshotReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotReadsTotal",
			Help: "CSV snapshot reads by snapshot and result",
		},
		[]string{"snapshot", "result"},
	)
	SnapshotSkippedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotSkippedRowsTotal",
			Help: "Malformed CSV rows skipped while reading snapshots",
		},
		[]string{"snapshot"},
	)
	InventoryLowStockItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventoryLowStockItems",
			Help: "Inventory items below the low-stock threshold at the last query",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	WatcherPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcherPollsTotal",
			Help: "File watcher poll iterations",
		},
		[]string{"target"},
	)
	WatcherChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcherChangesTotal",
			Help: "File changes detected and delivered",
		},
		[]string{"target"},
	)
	WatcherReadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcherReadErrorsTotal",
			Help: "Failed reads of a changed file",
		},
		[]string{"target"},
	)
	WatcherSinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcherSinkErrorsTotal",
			Help: "Failed change deliveries",
		},
		[]string{"target"},
	)
	WatcherLastChangeTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watcherLastChangeTimestampSeconds",
			Help: "Modification time of the last delivered change (unix seconds)",
		},
		[]string{"target"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		WeatherQueriesByCityTotal, WeatherAlertsTotal,
		SnapshotReadsTotal, SnapshotSkippedRowsTotal, InventoryLowStockItems,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		WatcherPollsTotal, WatcherChangesTotal, WatcherReadErrorsTotal,
		WatcherSinkErrorsTotal, WatcherLastChangeTimestamp,
	)
}

// SetTrackedCities sets the allow-list for city metrics. Other cities are counted as "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCity(c)] = struct{}{}
	}
}

// RecordWeatherQuery counts a weather lookup for city.
func RecordWeatherQuery(city string) {
	WeatherQueriesByCityTotal.WithLabelValues(CityLabel(city)).Inc()
}

// CityLabel returns the metric label for city: the normalized name when
// tracked, "other" otherwise.
func CityLabel(city string) string {
	c := normalizeCity(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe in Go
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// RecordSnapshotRead counts one snapshot read and any rows it skipped.
func RecordSnapshotRead(snapshot, result string, skipped int) {
	SnapshotReadsTotal.WithLabelValues(snapshot, result).Inc()
	if skipped > 0 {
		SnapshotSkippedRowsTotal.WithLabelValues(snapshot).Add(float64(skipped))
	}
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
// state values follow circuitbreaker.State: 0 closed, 1 open, 2 half-open.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
