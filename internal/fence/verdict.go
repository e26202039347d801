package fence

import "fmt"

// Verdict is the host-facing result code.
type Verdict int

const (
	Allow Verdict = 1
	Block Verdict = -1
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Block:
		return "block"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Reason 记录判定依据，仅用于诊断与统计，不影响返回码
type Reason string

const (
	ReasonDisabled      Reason = "disabled"
	ReasonUnknownTenant Reason = "unknown_tenant"
	ReasonLookupFailed  Reason = "lookup_failed"
	ReasonCountry       Reason = "country"
	ReasonNoMatch       Reason = "no_match"
	ReasonMatched       Reason = "matched"
	ReasonCountryOK     Reason = "country_ok"
)

// 过滤器名称，与宿主脚本中的函数名一致
const (
	FilterTenant   = "geoip2_filter"
	FilterLocation = "geo_fence_allow"
)

// 文档注释：一次过滤的判定结果
// 约束：Country/City 仅在地理库解析成功后填写；DistanceKm 为半径围栏中最近参考点的距离（命中时为命中点距离）。
type Decision struct {
	Filter          string  `json:"filter"`
	Verdict         Verdict `json:"result"`
	Reason          Reason  `json:"reason"`
	Realm           string  `json:"realm,omitempty"`
	Country         string  `json:"country,omitempty"`
	City            string  `json:"city,omitempty"`
	DistanceKm      float64 `json:"distance_km,omitempty"`
	MatchedLocation string  `json:"matched,omitempty"`
}

func (d Decision) Allowed() bool { return d.Verdict == Allow }
