// Package metrics holds the Prometheus collectors of the query server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cluster_requests_total",
		Help: "Total number of API requests by route and status code",
	}, []string{"route", "code"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cluster_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	FeaturesReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cluster_features_returned",
		Help:    "Number of features in /clusters responses",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cluster_cache_hits_total",
		Help: "Total redis response cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cluster_cache_misses_total",
		Help: "Total redis response cache misses",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cluster_rate_limited_total",
		Help: "Total requests rejected by the rate limiter",
	})
	LoadedPoints = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cluster_loaded_points",
		Help: "Number of input points in the served hierarchy",
	})
	LoadDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cluster_load_duration_seconds",
		Help: "Time it took to build or restore the served hierarchy",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(FeaturesReturned)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(LoadedPoints)
	prometheus.MustRegister(LoadDurationSeconds)
}

// Handler exposes the registered collectors, mounted at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
