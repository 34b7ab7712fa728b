// Package cache provides a bounded, deduplicating in-memory cache for
// remotely fetched resources.
//
// The Coordinator combines three behaviours behind a single lock:
//
// - LRU storage bounded by entry count and aggregate cost (e.g. bytes)
// - Single-flight loading: concurrent misses for one key share one load
// - Success-only caching: a failed load is handed to every waiter and forgotten
//
// # Basic Usage
//
//	images := cache.New(func(ctx context.Context, url string) (*client.Image, error) {
//		return unsplash.FetchImage(ctx, url)
//	}, cache.Options[string, *client.Image]{
//		Name:       "images",
//		MaxEntries: 1000,
//		MaxCost:    640 << 20,
//		Cost:       func(img *client.Image) int64 { return int64(len(img.Data)) },
//	})
//
//	img, err := images.Get(ctx, url)
//
// # Keys
//
// Keys are any comparable value. For URLs, use URLKey to obtain a canonical
// form so that equivalent URLs share one entry:
//
//	key, err := cache.URLKey("https://images.unsplash.com/photo-1?w=400&fm=jpg")
//
// # Cancellation
//
// The context passed to Get bounds how long that caller waits. The shared
// load itself is detached from any single caller's cancellation so that one
// impatient caller cannot fail the others; it still inherits context values.
//
// # Metrics
//
// The coordinator exports Prometheus metrics labelled by Options.Name:
//
//   - unsplash_cache_hits_total{cache} - Cache hits
//   - unsplash_cache_misses_total{cache} - Misses that started a load
//   - unsplash_cache_joins_total{cache} - Misses that joined an in-flight load
//   - unsplash_cache_load_errors_total{cache} - Failed loads
//   - unsplash_cache_evictions_total{cache,reason} - Evictions (count, cost)
//   - unsplash_cache_entries{cache} - Resident entries
//   - unsplash_cache_cost_bytes{cache} - Resident aggregate cost
package cache
