package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmscache_tile_requests_total",
		Help: "Total number of tile requests",
	}, []string{"layer"})

	TilesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmscache_tile_rejected_total",
		Help: "Total number of tile requests rejected by a filter",
	}, []string{"filter"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_cache_store_failures_total",
		Help: "Total number of tiles that could not be written to the cache",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_cache_stores_total",
		Help: "Total number of tiles written to the cache",
	})

	MetaTileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmscache_metatile_fetches_total",
		Help: "Total number of metatile fetches by result",
	}, []string{"result"})

	MetaTileAttaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_metatile_attaches_total",
		Help: "Total number of callers that joined an in-flight metatile fetch",
	})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmscache_backend_requests_total",
		Help: "Total number of backend requests by outcome",
	}, []string{"outcome"})

	BackendFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_backend_failovers_total",
		Help: "Total number of times a fetch moved on to the next backend",
	})

	BackendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wmscache_backend_latency_seconds",
		Help:    "Latency of backend GetMap requests in seconds",
		Buckets: prometheus.DefBuckets,
	})

	MaxAgeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wmscache_max_age_fallbacks_total",
		Help: "Total number of backend responses without a usable max-age",
	})

	TileEncodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wmscache_tile_encode_failures_total",
		Help: "Total number of tiles that failed to encode",
	}, []string{"format"})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
