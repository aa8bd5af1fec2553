// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetches_total",
			Help: "Total number of fetch attempts, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetch_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_fetch_duration_seconds",
			Help:    "Histogram of successful fetch latencies, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_total",
			Help: "Documents processed after fetch, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	persistChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_persist_chunks_total",
			Help: "Persist calls, labeled by source and status.",
		},
		[]string{"source", "status"},
	)

	rowsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_rows_inserted_total",
			Help: "Rows inserted by the persistence writer, labeled by table.",
		},
		[]string{"table"},
	)

	activeBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_active_batches",
			Help: "Number of fan-out batch workers currently fetching.",
		},
	)

	headlessPromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_headless_promotions_total",
			Help: "Probe fetches promoted to a headless render, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served, labeled by method and code.",
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
)

// Record outcomes used with ObserveRecord.
const (
	RecordExtracted    = "extracted"
	RecordNotARecipe   = "not_a_recipe"
	RecordExtractError = "extract_error"
	RecordInvalid      = "invalid"
	RecordUnregistered = "unregistered"
)

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
	return promhttp.Handler()
}

// ObserveFetch counts one fetch attempt. outcome is "ok" or a fetch error kind.
func ObserveFetch(rawURL, outcome string, bytesFetched int, duration time.Duration) {
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	if outcome == "ok" {
		fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// ObserveRecord counts one document outcome for a source.
func ObserveRecord(source, outcome string) {
	recordsTotal.WithLabelValues(source, outcome).Inc()
}

// ObservePersistChunk counts one Persist call and the rows it inserted.
func ObservePersistChunk(source string, err error, recipes, ingredients, instructions, nutrition, tips int) {
	status := "committed"
	if err != nil {
		status = "rolled_back"
	}
	persistChunksTotal.WithLabelValues(source, status).Inc()
	if err != nil {
		return
	}
	rowsInsertedTotal.WithLabelValues("recipes").Add(float64(recipes))
	rowsInsertedTotal.WithLabelValues("recipe_ingredients").Add(float64(ingredients))
	rowsInsertedTotal.WithLabelValues("recipe_instructions").Add(float64(instructions))
	rowsInsertedTotal.WithLabelValues("recipe_nutrition").Add(float64(nutrition))
	rowsInsertedTotal.WithLabelValues("recipe_tips").Add(float64(tips))
}

// IncActiveBatches increments the active batch workers gauge.
func IncActiveBatches() {
	activeBatches.Inc()
}

// DecActiveBatches decrements the active batch workers gauge.
func DecActiveBatches() {
	activeBatches.Dec()
}

// ObservePromotion records one headless promotion attempt.
func ObservePromotion(rawURL string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	headlessPromotionsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics endpoint.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
