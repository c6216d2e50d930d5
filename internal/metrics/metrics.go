// Package metrics exposes Prometheus collectors for the affiche service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchDelaySeconds          prometheus.Histogram
	cacheRequestsTotal         *prometheus.CounterVec
	poolActiveWorkers          prometheus.Gauge
	poolTasksTotal             *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiche_fetch_total",
				Help: "Total number of outbound fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "affiche_fetch_delay_seconds",
				Help:    "Histogram of randomized pre-request delays.",
				Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		cacheRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiche_cache_requests_total",
				Help: "Total number of cache lookups, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		poolActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "affiche_pool_active_workers",
				Help: "Number of pool workers currently running a task.",
			},
		)

		poolTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiche_pool_tasks_total",
				Help: "Total number of pool tasks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "affiche_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"stage"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "affiche_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch counts one outbound fetch.
func ObserveFetch(rawURL string, outcome string) {
	Init()
	fetchTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveFetchDelay records the randomized delay injected before a fetch.
func ObserveFetchDelay(delay time.Duration) {
	Init()
	fetchDelaySeconds.Observe(delay.Seconds())
}

// ObserveCache counts a cache lookup; result is "hit" or "miss".
func ObserveCache(op string, result string) {
	Init()
	cacheRequestsTotal.WithLabelValues(op, result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	poolActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	poolActiveWorkers.Dec()
}

// ObservePoolTask counts a finished pool task; outcome is "ok", "dropped" or "panic".
func ObservePoolTask(outcome string) {
	Init()
	poolTasksTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records the wall time of one pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
