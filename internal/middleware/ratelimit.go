package middleware

import (
	"net/http"

	"geo-fence/internal/metrics"

	"golang.org/x/time/rate"
)

// 文档注释：令牌桶限流中间件
// 背景：在流量峰值时对入口进行限速，避免地理库与缓存被过载；速率与突发量来自配置。
// 约束：不排队，令牌不足时直接返回 429。
func RateLimit(qps float64, burst int) func(http.Handler) http.Handler {
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(qps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				metrics.RateLimitedTotal.Inc()
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
