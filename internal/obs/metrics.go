package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SearchRequestsTotal  prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheEvictionsTotal  prometheus.Counter
	SuggestHitsTotal     prometheus.Counter
	DedupSharedTotal     prometheus.Counter
	ShortQueryDropsTotal prometheus.Counter
	RateLimitDropsTotal  *prometheus.CounterVec

	RemoteErrors  *prometheus.CounterVec
	RemoteLatency *prometheus.HistogramVec

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	Registry            *prometheus.Registry
}

// Create Prometheus collectors and register them
func NewMetrics(p *prometheus.Registry) *Metrics {
	m := &Metrics{
		SearchRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_search_requests_total",
			Help: "Total number of incoming part search requests",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_cache_hits_total",
			Help: "Number of cache hits for search results",
		}),
		CacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_cache_evictions_total",
			Help: "Search cache entries evicted by the size bound",
		}),
		SuggestHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_suggest_cache_hits_total",
			Help: "Number of cache hits for suggestion results",
		}),
		DedupSharedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_dedup_shared_total",
			Help: "Searches that joined an already in-flight identical request",
		}),
		ShortQueryDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parts_short_query_drops_total",
			Help: "Searches short-circuited because the query was below the minimum length",
		}),
		RateLimitDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parts_ratelimit_drops_total",
			Help: "Requests dropped due to rate limiting",
		}, []string{"category"},
		),
		RemoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_rpc_errors_total",
			Help: "Errors returned by each remote RPC function",
		}, []string{"fn"},
		),
		RemoteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remote_rpc_latency_seconds",
				Help:    "Latency of remote RPC calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"fn"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		Registry: p,
	}

	// Register metrics with Prometheus
	p.MustRegister(
		m.SearchRequestsTotal,
		m.CacheHitsTotal,
		m.CacheEvictionsTotal,
		m.SuggestHitsTotal,
		m.DedupSharedTotal,
		m.ShortQueryDropsTotal,
		m.RateLimitDropsTotal,
		m.RemoteErrors,
		m.RemoteLatency,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncSearchRequests() { m.SearchRequestsTotal.Inc() }
func (m *Metrics) IncCacheHits()      { m.CacheHitsTotal.Inc() }
func (m *Metrics) IncCacheEvictions() { m.CacheEvictionsTotal.Inc() }
func (m *Metrics) IncSuggestHits()    { m.SuggestHitsTotal.Inc() }
func (m *Metrics) IncDedupShared()    { m.DedupSharedTotal.Inc() }

func (m *Metrics) IncShortQueryDrops() { m.ShortQueryDropsTotal.Inc() }

func (m *Metrics) IncRateLimitDrops(category string) {
	m.RateLimitDropsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveRemoteLatency(fn string, seconds float64) {
	m.RemoteLatency.WithLabelValues(fn).Observe(seconds)
}

func (m *Metrics) IncRemoteError(fn string) {
	m.RemoteErrors.WithLabelValues(fn).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
