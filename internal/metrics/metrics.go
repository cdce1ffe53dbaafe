// Package metrics exposes Prometheus collectors for the meeting crawler.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	identityRotationsTotal     *prometheus.CounterVec
	recordsExtractedTotal      *prometheus.CounterVec
	sitesTotal                 *prometheus.CounterVec
	resolverResultsTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     prometheus.Histogram

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetings_fetch_attempts_total",
				Help: "Page fetch attempts, labeled by site and classified outcome.",
			},
			[]string{"site", "outcome"},
		)

		identityRotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetings_identity_rotations_total",
				Help: "Browser identity rotations triggered by bot detection, labeled by site.",
			},
			[]string{"site"},
		)

		recordsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetings_records_extracted_total",
				Help: "Validated records proposed by each extraction strategy.",
			},
			[]string{"strategy"},
		)

		sitesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetings_sites_total",
				Help: "Sites processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		resolverResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetings_resolver_results_total",
				Help: "Media URL resolutions, labeled by media type and outcome.",
			},
			[]string{"type", "outcome"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetings_rate_limit_delays_seconds",
				Help:    "Histogram of pacing gate wait durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// ObserveFetch counts one fetch attempt against the page's host.
func ObserveFetch(pageURL, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(pageURL), outcome).Inc()
}

// ObserveIdentityRotation counts one identity rotation for the page's host.
func ObserveIdentityRotation(pageURL string) {
	Init()
	identityRotationsTotal.WithLabelValues(SanitizeSite(pageURL)).Inc()
}

// ObserveRecords adds n records to the strategy's counter.
func ObserveRecords(strategy string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsExtractedTotal.WithLabelValues(strategy).Add(float64(n))
}

// ObserveSite counts a finished site.
func ObserveSite(outcome string) {
	Init()
	sitesTotal.WithLabelValues(outcome).Inc()
}

// ObserveResolution counts one media resolution.
func ObserveResolution(mediaType string, ok bool) {
	Init()
	outcome := "failed"
	if ok {
		outcome = "resolved"
	}
	resolverResultsTotal.WithLabelValues(mediaType, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a pacing gate wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.Observe(duration.Seconds())
}
