package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"

	"geo-fence/internal/logger"
)

// 文档注释：调用方白名单（IP/CIDR）
// 背景：过滤服务只应被宿主代理调用；开启后仅允许列表内来源访问，其余返回 403。
// 约束：来源 IP 以 RemoteAddr 为准，设置 realIPHeader 时取该头的首个有效 IP；支持 IPv4/IPv6 CIDR。
type CallerGuard struct {
	allowIPs     map[string]struct{}
	allowCIDRs   []*net.IPNet
	realIPHeader string
}

// CallerGuardFromEnv 读取 CALLER_ALLOW_IPS/CALLER_ALLOW_CIDRS/CALLER_ALLOW_LOCAL/CALLER_REAL_IP_HEADER；
// CALLER_GUARD_ENABLE 不为 true 时返回 nil（不启用）
func CallerGuardFromEnv() *CallerGuard {
	if os.Getenv("CALLER_GUARD_ENABLE") != "true" {
		return nil
	}
	return NewCallerGuard(
		splitList(os.Getenv("CALLER_ALLOW_IPS")),
		splitList(os.Getenv("CALLER_ALLOW_CIDRS")),
		os.Getenv("CALLER_ALLOW_LOCAL") == "true",
		strings.TrimSpace(os.Getenv("CALLER_REAL_IP_HEADER")),
	)
}

func NewCallerGuard(ips, cidrs []string, allowLocal bool, realIPHeader string) *CallerGuard {
	g := &CallerGuard{allowIPs: map[string]struct{}{}, realIPHeader: realIPHeader}
	for _, p := range ips {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			g.allowIPs[ip.String()] = struct{}{}
		}
	}
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			g.allowCIDRs = append(g.allowCIDRs, n)
		}
	}
	if allowLocal {
		g.allowIPs["127.0.0.1"] = struct{}{}
		g.allowIPs["::1"] = struct{}{}
	}
	return g
}

// Wrap 在 g 为 nil 时原样返回 next
func (g *CallerGuard) Wrap(next http.Handler) http.Handler {
	if g == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.extractIP(r)
		if ip != nil && g.allowed(ip) {
			next.ServeHTTP(w, r)
			return
		}
		logger.L().Debug("caller_guard_block", "remote", r.RemoteAddr)
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"caller not allowed"}`))
	})
}

func (g *CallerGuard) allowed(ip net.IP) bool {
	if _, ok := g.allowIPs[ip.String()]; ok {
		return true
	}
	for _, n := range g.allowCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (g *CallerGuard) extractIP(r *http.Request) net.IP {
	if g.realIPHeader != "" {
		if raw := r.Header.Get(g.realIPHeader); raw != "" {
			first := strings.TrimSpace(strings.Split(raw, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
