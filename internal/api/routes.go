// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"geo-fence/internal/cache"
	"geo-fence/internal/fence"
	"geo-fence/internal/geodb"
	"geo-fence/internal/geomath"
	"geo-fence/internal/logger"
	"geo-fence/internal/metrics"
	"geo-fence/internal/middleware"
	"geo-fence/internal/store"
	"geo-fence/internal/tenant"
	"geo-fence/internal/version"
)

// Deps 为路由所需的依赖；Store/Stats/Verdicts/Seen/Matcher/Reload 均可为空
type Deps struct {
	Engine           *fence.Engine
	Holder           *tenant.Holder
	Matcher          geodb.Matcher
	Store            *store.Store
	Stats            *store.Recorder
	Verdicts         *cache.Verdicts
	Seen             *cache.Seen
	AdminToken       string
	GeohashPrecision int
	Reload           func(ctx context.Context) error
}

type server struct {
	Deps
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	s := &server{Deps: d}
	mux := http.NewServeMux()
	mux.HandleFunc("/geoip2_filter", s.handleTenantFilter)
	mux.HandleFunc("/geo_fence_allow", s.handleLocFilter)
	mux.HandleFunc("/match", s.handleMatch)
	mux.HandleFunc("/tenants", s.admin(s.handleTenants))
	mux.HandleFunc("/reload", s.admin(s.handleReload))
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *server) handleTenantFilter(w http.ResponseWriter, r *http.Request) {
	defer observe(fence.FilterTenant, time.Now())
	realm := r.URL.Query().Get("realm")
	target := getClientIP(r)
	key := cache.Key(fence.FilterTenant, s.Holder.Generation(), realm, target, "")
	s.decide(w, r, key, target, func(ctx context.Context) (fence.Decision, error) {
		return s.Engine.TenantFilter(ctx, target, realm)
	})
}

// 文档注释：围栏过滤接口
// 背景：geo 依次取查询参数 geo、请求头 X-Geo、EdgeOne 经纬度头；可解析时以 geohash 作为缓存键的一部分。
func (s *server) handleLocFilter(w http.ResponseWriter, r *http.Request) {
	defer observe(fence.FilterLocation, time.Now())
	q := r.URL.Query()
	realm := q.Get("realm")
	target := getClientIP(r)
	geo := q.Get("geo")
	if geo == "" {
		geo = r.Header.Get("X-Geo")
	}
	if geo == "" {
		if g, ok := middleware.EdgeOneGeoFrom(r.Context()); ok {
			if c, ok := g.Coordinate(); ok {
				geo = c.String()
			}
		}
	}
	gh := ""
	if c, err := geomath.ParseCoordinate(geo); err == nil {
		gh = geomath.GeohashKey(c, s.geohashPrecision())
	}
	key := cache.Key(fence.FilterLocation, s.Holder.Generation(), realm, target, gh)
	s.decide(w, r, key, target, func(ctx context.Context) (fence.Decision, error) {
		return s.Engine.LocFilter(ctx, target, geo, realm)
	})
}

// geohashPrecision 低于最大精度的配置一律按最大精度处理
func (s *server) geohashPrecision() int {
	if s.GeohashPrecision < geomath.MaxGeohashPrecision {
		return geomath.MaxGeohashPrecision
	}
	return s.GeohashPrecision
}

func (s *server) decide(w http.ResponseWriter, r *http.Request, key, target string, run func(context.Context) (fence.Decision, error)) {
	ctx := r.Context()
	if d, ok := s.Verdicts.Get(ctx, key); ok {
		s.record(d)
		writeJSON(w, http.StatusOK, toResponse(d, target, true))
		return
	}
	d, err := run(ctx)
	if err != nil {
		var ie *fence.InputError
		if errors.As(err, &ie) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Result: ResultInputError, Error: err.Error()})
			return
		}
		logger.L().Error("fence_decide_error", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Result: ResultInputError, Error: "internal error"})
		return
	}
	s.Verdicts.Set(ctx, key, d)
	s.record(d)
	if d.Verdict == fence.Block && s.Seen.First(ctx, "fence:blocked:"+time.Now().UTC().Format("20060102"), []byte(d.Realm+"|"+target)) {
		logger.L().Warn("fence_block_new_source", "filter", d.Filter, "realm", d.Realm, "target", target, "reason", string(d.Reason))
	}
	writeJSON(w, http.StatusOK, toResponse(d, target, false))
}

// record 将判定交给统计队列；目录中不存在的 realm 统一记入 store.UnknownRealm
func (s *server) record(d fence.Decision) {
	if s.Stats == nil {
		return
	}
	realm := d.Realm
	if _, ok := s.Holder.Directory().Lookup(realm); !ok {
		realm = store.UnknownRealm
	}
	s.Stats.Record(realm, d.Filter, int(d.Verdict), string(d.Reason))
}

func (s *server) handleMatch(w http.ResponseWriter, r *http.Request) {
	defer observe("match", time.Now())
	target := getClientIP(r)
	if s.Matcher == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Result: -1, Error: "match not available"})
		return
	}
	m, ok := s.Matcher.Match(r.Context(), target)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Result: -1, Error: "no record for " + target})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handleTenants(w http.ResponseWriter, r *http.Request) {
	dir, gen := s.Holder.Load()
	resp := tenantsResponse{Enabled: dir.Enabled(), Generation: gen, Count: dir.Len(), Tenants: []tenantInfo{}}
	if dir.Enabled() {
		resp.Source = dir.Source()
		t := dir.LoadedAt()
		resp.LoadedAt = &t
		if c := dir.Collisions(); len(c) > 0 {
			resp.Collisions = c
		}
	}
	for _, realm := range dir.Realms() {
		rec, ok := dir.Lookup(realm)
		if !ok {
			continue
		}
		resp.Tenants = append(resp.Tenants, tenantInfo{
			Realm:     rec.Realm,
			Fence:     rec.Fence.String(),
			RadiusKm:  rec.RadiusKm,
			Locations: len(rec.Locations),
			Slot:      rec.Slot,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// 文档注释：重建并替换租户目录
// 约束：仅 POST；失败时旧目录继续服务并返回 500。
func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Reload == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "reload not configured"})
		return
	}
	if err := s.Reload(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "generation": s.Holder.Generation()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generation": s.Holder.Generation(), "count": s.Holder.Directory().Len()})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "stats disabled"})
		return
	}
	t, err := s.Store.GetTotals(r.Context())
	if err != nil {
		logger.L().Error("stats_error", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stats unavailable"})
		return
	}
	out := map[string]any{"total": t.Total, "today": t.Today, "today_allowed": t.TodayAllowed, "today_blocked": t.TodayBlocked}
	if realm := r.URL.Query().Get("realm"); realm != "" {
		rows, err := s.Store.TodayByRealm(r.Context(), realm, 100)
		if err == nil {
			out["realm"] = rows
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dir, gen := s.Holder.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"fencing_enabled": dir.Enabled(),
		"tenants":         dir.Len(),
		"generation":      gen,
		"allowed_country": s.Engine.AllowedCountry(),
		"commit":          version.Commit,
	})
}

// admin 校验 x-admin-token；未配置令牌时一律拒绝
func (s *server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get("x-admin-token")
		if s.AdminToken == "" || subtle.ConstantTimeCompare([]byte(t), []byte(s.AdminToken)) != 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(endpoint).Inc()
	metrics.RequestDurationMs.WithLabelValues(endpoint).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
