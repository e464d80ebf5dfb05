// Package telemetry defines the service's Prometheus metrics and the HTTP
// middleware that feeds them.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colorsync_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colorsync_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	pagesScrapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colorsync_pages_scraped_total",
			Help: "Total pages scraped, labeled by page type.",
		},
		[]string{"type"},
	)

	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colorsync_cache_hits_total",
			Help: "Total cache reads answered from a live entry.",
		},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colorsync_cache_misses_total",
			Help: "Total cache reads that missed or had expired.",
		},
	)

	gateRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "colorsync_gate_retries_total",
			Help: "Total request retries scheduled by the dispatch gate.",
		},
	)

	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colorsync_sync_runs_total",
			Help: "Total sync runs, labeled by source and outcome.",
		},
		[]string{"source", "status"},
	)

	combinationsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "colorsync_combinations_stored",
			Help: "Combinations currently held in the store after the last sync.",
		},
	)
)

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncPageScraped counts a scraped page by its classified type.
func IncPageScraped(pageType string) {
	pagesScrapedTotal.WithLabelValues(pageType).Inc()
}

// IncCacheHit counts a cache hit.
func IncCacheHit() { cacheHitsTotal.Inc() }

// IncCacheMiss counts a cache miss.
func IncCacheMiss() { cacheMissesTotal.Inc() }

// IncGateRetry counts a scheduled retry.
func IncGateRetry() { gateRetriesTotal.Inc() }

// ObserveSyncRun records one sync attempt per source.
func ObserveSyncRun(source string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	syncRunsTotal.WithLabelValues(source, status).Inc()
}

// SetCombinationsStored updates the stored-combination gauge.
func SetCombinationsStored(n int) {
	combinationsStored.Set(float64(n))
}
