// Package metrics provides the Prometheus registry and HTTP handler for the
// Unsplash client. All metrics are defined in their respective packages
// (client, cache, pagination, ratelimit, favorites) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the Unsplash client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - unsplash_ratelimit_wait_seconds (Histogram): Time callers waited for a request slot
//   - unsplash_ratelimit_remaining (Gauge): Requests remaining in the server-reported quota
//   - unsplash_ratelimit_blocks_total (Counter): Requests blocked because the quota was exhausted
//
// Cache Metrics (pkg/cache):
//   - unsplash_cache_hits_total{cache} (Counter): Lookups served from memory
//   - unsplash_cache_misses_total{cache} (Counter): Lookups that started a load
//   - unsplash_cache_joins_total{cache} (Counter): Lookups that joined an in-flight load
//   - unsplash_cache_load_errors_total{cache} (Counter): Failed loads (never cached)
//   - unsplash_cache_evictions_total{cache, reason} (Counter): LRU evictions by ceiling (count, cost)
//   - unsplash_cache_entries{cache} (Gauge): Resident entries
//   - unsplash_cache_cost_bytes{cache} (Gauge): Aggregate cost of resident entries
//
// Pagination Metrics (pkg/pagination):
//   - unsplash_pagination_pages_total{outcome} (Counter): Page fetches by outcome (success, error, cancelled, stale)
//   - unsplash_pagination_page_duration_seconds (Histogram): Page fetch duration
//   - unsplash_pagination_duplicates_total (Counter): Items dropped as already seen
//
// Request Metrics (pkg/client):
//   - unsplash_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - unsplash_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - unsplash_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Favorites Metrics (pkg/favorites):
//   - unsplash_favorites_saves_total{outcome} (Counter): Persisted saves by outcome
//   - unsplash_favorites_authors (Gauge): Number of favorite authors
//
// Example Prometheus Queries:
//
//   # Image Cache Hit Rate (joins count as served without a download)
//   sum(rate(unsplash_cache_hits_total{cache="images"}[5m]) + rate(unsplash_cache_joins_total{cache="images"}[5m])) /
//   sum(rate(unsplash_cache_hits_total{cache="images"}[5m]) + rate(unsplash_cache_joins_total{cache="images"}[5m]) + rate(unsplash_cache_misses_total{cache="images"}[5m]))
//
//   # Quota Status
//   unsplash_ratelimit_remaining < 10
//
//   # Stale Page Ratio
//   rate(unsplash_pagination_pages_total{outcome="stale"}[5m]) / rate(unsplash_pagination_pages_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(unsplash_request_duration_seconds_bucket[5m]))
