// 包 middleware：入口中间件组合（EdgeOne 地理上下文、调用方白名单、限流）
package middleware

import "net/http"

type Options struct {
	RateLimitEnabled bool
	QPS              float64
	Burst            int
	Guard            *CallerGuard
}

// Wrap 组合顺序：EdgeOne 注入 → 白名单 → 限流 → next
func Wrap(next http.Handler, o Options) http.Handler {
	h := next
	if o.RateLimitEnabled {
		h = RateLimit(o.QPS, o.Burst)(h)
	}
	h = o.Guard.Wrap(h)
	return EdgeOne(h)
}
