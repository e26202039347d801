// 包 geodb：地理库查询协作方；将地址解析为国家代码、城市与坐标
package geodb

import (
	"context"
	"net"
	"strings"
)

// 文档注释：一次地址解析的结果
// 约束：Country 为 ISO 3166-1 alpha-2 代码；City 取英文名；库中无坐标时 HasCoords 为 false。
type Result struct {
	Country   string
	City      string
	Lat       float64
	Lon       float64
	HasCoords bool
}

// Locator resolves an address; false means the lookup failed.
type Locator interface {
	Locate(ctx context.Context, addr string) (Result, bool)
}

// LocatorFunc adapts a plain function to Locator.
type LocatorFunc func(ctx context.Context, addr string) (Result, bool)

func (f LocatorFunc) Locate(ctx context.Context, addr string) (Result, bool) { return f(ctx, addr) }

// 文档注释：match 查询返回的完整地理变量
// 背景：对应宿主脚本中可读取的逐请求变量；字段均为字符串以便直接输出。
type Match struct {
	IP          string `json:"ips"`
	CountryCode string `json:"cc"`
	Country     string `json:"country"`
	City        string `json:"city"`
	RegionCode  string `json:"regc"`
	Region      string `json:"regn"`
	Zip         string `json:"zip"`
	TimeZone    string `json:"tz"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Metro       string `json:"metro"`
	Continent   string `json:"contc"`
	Netmask     string `json:"nmask"`
}

// Matcher exposes the full record lookup used by the match endpoint.
type Matcher interface {
	Match(ctx context.Context, addr string) (Match, bool)
}

// ParseAddr 仅接受字面 IP（可带方括号或端口）；主机名不做 DNS 解析
func ParseAddr(addr string) net.IP {
	s := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	return net.ParseIP(s)
}
