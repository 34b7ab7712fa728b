package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks hits by cache name
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unsplash_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks misses that started a new load
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unsplash_cache_misses_total",
			Help: "Total number of cache misses that started a load",
		},
		[]string{"cache"},
	)

	// CacheJoins tracks misses that joined an in-flight load
	CacheJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unsplash_cache_joins_total",
			Help: "Total number of cache misses served by an in-flight load",
		},
		[]string{"cache"},
	)

	// CacheLoadErrors tracks failed loads
	CacheLoadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unsplash_cache_load_errors_total",
			Help: "Total number of failed cache loads",
		},
		[]string{"cache"},
	)

	// CacheEvictions tracks evictions by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unsplash_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache", "reason"}, // "count", "cost"
	)

	// CacheEntries tracks resident entries
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unsplash_cache_entries",
			Help: "Current number of resident cache entries",
		},
		[]string{"cache"},
	)

	// CacheCost tracks resident aggregate cost
	CacheCost = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unsplash_cache_cost_bytes",
			Help: "Current aggregate cost of resident cache entries",
		},
		[]string{"cache"},
	)
)
