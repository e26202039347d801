package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_requests_total",
		Help: "Total number of filter API requests",
	}, []string{"endpoint"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geofence_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"endpoint"})
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_decisions_total",
		Help: "Filter decisions by filter, verdict and reason",
	}, []string{"filter", "verdict", "reason"})
	InputErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_input_errors_total",
		Help: "Requests rejected as malformed before any policy decision",
	}, []string{"filter"})
	GeoLookupDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geofence_geo_lookup_duration_ms",
		Help:    "Geo database lookup duration in milliseconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 50},
	})
	GeoLookupFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_geo_lookup_fail_total",
		Help: "Geo database lookups that returned no record",
	})
	TenantsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geofence_tenants_loaded",
		Help: "Number of tenants in the active directory",
	})
	ReloadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_reload_total",
		Help: "Tenant directory reloads by status",
	}, []string{"status"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_cache_hits_total",
		Help: "Total verdict cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_cache_misses_total",
		Help: "Total verdict cache misses",
	})
	StatsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_stats_dropped_total",
		Help: "Decision statistics dropped because the record queue was full",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(InputErrorsTotal)
	prometheus.MustRegister(GeoLookupDurationMs)
	prometheus.MustRegister(GeoLookupFailTotal)
	prometheus.MustRegister(TenantsLoaded)
	prometheus.MustRegister(ReloadTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(StatsDroppedTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径，供 Prometheus 抓取；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
