package api

import (
	"net"
	"net/http"
	"strings"
)

// 文档注释：获取待判定的来源地址
// 背景：宿主通常显式传入 target；缺省时依次取常见反向代理头，最后回退远端地址，确保多层代理链路中得到稳定来源 IP。
// 约束：请求头可被伪造，部署于不可信链路时应配合调用方白名单。
func getClientIP(r *http.Request) string {
	if q := strings.TrimSpace(r.URL.Query().Get("target")); q != "" {
		return q
	}
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip", "x-edge-client-ip", "x-edgeone-ip", "x-eo-client-ip"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := x[i+4:]
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\" ")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
