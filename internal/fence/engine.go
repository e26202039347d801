// 包 fence：租户地理围栏匹配引擎
package fence

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"geo-fence/internal/geodb"
	"geo-fence/internal/geomath"
	"geo-fence/internal/logger"
	"geo-fence/internal/metrics"
	"geo-fence/internal/tenant"
)

// DefaultAllowedCountry 为国家放行名单的默认值（单一 ISO 代码）
const DefaultAllowedCountry = "IN"

type Options struct {
	AllowedCountry string
	Logger         *slog.Logger
}

// 文档注释：匹配引擎
// 背景：每次请求读取当前目录快照，整个判定过程使用同一快照，重载不会影响进行中的请求。
// 约束：只读，可并发使用；不持有任何全局状态。
type Engine struct {
	dirs    *tenant.Holder
	loc     geodb.Locator
	allowed string
	log     *slog.Logger
}

func New(dirs *tenant.Holder, loc geodb.Locator, opts Options) *Engine {
	if dirs == nil {
		dirs = tenant.NewHolder(nil)
	}
	allowed := strings.ToUpper(strings.TrimSpace(opts.AllowedCountry))
	if allowed == "" {
		allowed = DefaultAllowedCountry
	}
	l := opts.Logger
	if l == nil {
		l = logger.L()
	}
	return &Engine{dirs: dirs, loc: loc, allowed: allowed, log: l}
}

func (e *Engine) AllowedCountry() string { return e.allowed }

func (e *Engine) Directory() *tenant.Directory { return e.dirs.Directory() }

// 文档注释：国家级过滤（geoip2_filter）
// 背景：只校验租户存在与来源国家，不看围栏内容。
// 顺序：功能未启用放行 → 输入校验 → 未知租户拒绝 → 解析失败拒绝 → 国家不符拒绝 → 放行。
func (e *Engine) TenantFilter(ctx context.Context, target, realm string) (Decision, error) {
	d := Decision{Filter: FilterTenant, Realm: realm}
	dir := e.dirs.Directory()
	if !dir.Enabled() {
		return e.finish(d, Allow, ReasonDisabled), nil
	}
	if err := e.validate(FilterTenant, realm, target, ""); err != nil {
		return Decision{}, err
	}
	if _, ok := dir.Lookup(realm); !ok {
		return e.finish(d, Block, ReasonUnknownTenant), nil
	}
	res, ok := e.locate(ctx, target)
	if !ok {
		return e.finish(d, Block, ReasonLookupFailed), nil
	}
	d.Country, d.City = res.Country, res.City
	if res.Country != e.allowed {
		return e.finish(d, Block, ReasonCountry), nil
	}
	return e.finish(d, Allow, ReasonCountryOK), nil
}

// 文档注释：围栏过滤（geo_fence_allow）
// 背景：在国家级过滤之后按租户围栏类型判定。半径围栏使用请求携带的 "lat long" 坐标，
// 依次计算到各参考点的公里距离，严格小于半径即命中并停止；城市围栏以解析出的城市名与每个条目做区分大小写的精确比较，遍历全部条目。
// 约束：半径围栏下 geo 无法解析返回 *InputError；城市围栏忽略 geo。
func (e *Engine) LocFilter(ctx context.Context, target, geo, realm string) (Decision, error) {
	d := Decision{Filter: FilterLocation, Realm: realm}
	dir := e.dirs.Directory()
	if !dir.Enabled() {
		return e.finish(d, Allow, ReasonDisabled), nil
	}
	if err := e.validate(FilterLocation, realm, target, geo); err != nil {
		return Decision{}, err
	}
	rec, ok := dir.Lookup(realm)
	if !ok {
		return e.finish(d, Block, ReasonUnknownTenant), nil
	}
	res, ok := e.locate(ctx, target)
	if !ok {
		return e.finish(d, Block, ReasonLookupFailed), nil
	}
	d.Country, d.City = res.Country, res.City
	if res.Country != e.allowed {
		return e.finish(d, Block, ReasonCountry), nil
	}

	if rec.Fence == tenant.Radial {
		in, err := geomath.ParseCoordinate(geo)
		if err != nil {
			metrics.InputErrorsTotal.WithLabelValues(FilterLocation).Inc()
			return Decision{}, &InputError{Field: "geo", Reason: "expected \"lat long\"", Err: err}
		}
		idx, dist := matchRadial(rec, in)
		d.DistanceKm = dist
		if idx >= 0 {
			d.MatchedLocation = rec.Locations[idx]
			return e.finish(d, Allow, ReasonMatched), nil
		}
		return e.finish(d, Block, ReasonNoMatch), nil
	}

	if idx := matchCity(rec, res.City); idx >= 0 {
		d.MatchedLocation = rec.Locations[idx]
		return e.finish(d, Allow, ReasonMatched), nil
	}
	return e.finish(d, Block, ReasonNoMatch), nil
}

// matchRadial 返回首个距离严格小于半径的参考点下标（无则 -1）及对应距离；未命中时距离为最近参考点的距离
func matchRadial(rec *tenant.Record, in geomath.Coordinate) (int, float64) {
	nearest := math.Inf(1)
	for i, p := range rec.Points {
		dist := geomath.DistanceBetween(in, p, geomath.Kilometers)
		if dist < rec.RadiusKm {
			return i, dist
		}
		if dist < nearest {
			nearest = dist
		}
	}
	if math.IsInf(nearest, 1) {
		nearest = 0
	}
	return -1, nearest
}

// matchCity 遍历全部条目，返回首个精确匹配的下标（无则 -1）
func matchCity(rec *tenant.Record, city string) int {
	found := -1
	for i, loc := range rec.Locations {
		if loc == city && found < 0 {
			found = i
		}
	}
	return found
}

func (e *Engine) validate(filter, realm, target, geo string) error {
	err := checkField("realm", realm, MaxRealmLen)
	if err == nil {
		err = checkField("target", target, MaxTargetLen)
	}
	if err == nil && len(geo) > MaxGeoLen {
		err = &InputError{Field: "geo", Reason: "too long"}
	}
	if err != nil {
		metrics.InputErrorsTotal.WithLabelValues(filter).Inc()
		e.log.Warn("fence_input_error", "filter", filter, "realm", truncate(realm), "err", err)
	}
	return err
}

func (e *Engine) locate(ctx context.Context, target string) (geodb.Result, bool) {
	if e.loc == nil {
		return geodb.Result{}, false
	}
	start := time.Now()
	res, ok := e.loc.Locate(ctx, target)
	metrics.GeoLookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if !ok {
		metrics.GeoLookupFailTotal.Inc()
	}
	return res, ok
}

func (e *Engine) finish(d Decision, v Verdict, r Reason) Decision {
	d.Verdict, d.Reason = v, r
	metrics.DecisionsTotal.WithLabelValues(d.Filter, v.String(), string(r)).Inc()
	if v == Block {
		e.log.Info("fence_block",
			"filter", d.Filter,
			"realm", d.Realm,
			"reason", string(r),
			"country", d.Country,
			"city", d.City,
			"distance_km", d.DistanceKm,
		)
	} else {
		e.log.Debug("fence_allow",
			"filter", d.Filter,
			"realm", d.Realm,
			"reason", string(r),
			"matched", d.MatchedLocation,
		)
	}
	return d
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
