package api

import (
	"time"

	"geo-fence/internal/fence"
)

// 文档注释：判定返回结构（对外）
// 约束：result 与宿主返回码一致（1 放行，-1 拒绝，-2 输入错误）；字段稳定。
type decisionResponse struct {
	Result     int     `json:"result"`
	Verdict    string  `json:"verdict"`
	Reason     string  `json:"reason"`
	Realm      string  `json:"realm,omitempty"`
	Target     string  `json:"target"`
	Country    string  `json:"country,omitempty"`
	City       string  `json:"city,omitempty"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	Matched    string  `json:"matched,omitempty"`
	Cached     bool    `json:"cached"`
}

// ResultInputError 为输入错误的返回码，不与判定码重叠
const ResultInputError = -2

type errorResponse struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
}

func toResponse(d fence.Decision, target string, cached bool) decisionResponse {
	return decisionResponse{
		Result:     int(d.Verdict),
		Verdict:    d.Verdict.String(),
		Reason:     string(d.Reason),
		Realm:      d.Realm,
		Target:     target,
		Country:    d.Country,
		City:       d.City,
		DistanceKm: d.DistanceKm,
		Matched:    d.MatchedLocation,
		Cached:     cached,
	}
}

type tenantInfo struct {
	Realm     string  `json:"realm"`
	Fence     string  `json:"fence"`
	RadiusKm  float64 `json:"radius_km"`
	Locations int     `json:"locations"`
	Slot      uint32  `json:"slot"`
}

type tenantsResponse struct {
	Enabled    bool                `json:"enabled"`
	Source     string              `json:"source,omitempty"`
	Generation uint64              `json:"generation"`
	LoadedAt   *time.Time          `json:"loaded_at,omitempty"`
	Count      int                 `json:"count"`
	Tenants    []tenantInfo        `json:"tenants"`
	Collisions map[uint32][]string `json:"collisions,omitempty"`
}
