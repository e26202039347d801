package middleware

import (
	"context"
	"net/http"
	"strconv"

	"geo-fence/internal/geomath"
	"geo-fence/internal/logger"
)

// EdgeOneGeo 为 EdgeOne 回源时改写的地理请求头
type EdgeOneGeo struct {
	CountryName       string
	CountryCodeAlpha2 string
	RegionName        string
	CityName          string
	ClientIP          string
	ISP               string
	ASN               int
	Latitude          float64
	Longitude         float64
	HasCoords         bool
}

// Coordinate returns the edge-supplied coordinate when both axes were present.
func (g EdgeOneGeo) Coordinate() (geomath.Coordinate, bool) {
	if !g.HasCoords {
		return geomath.Coordinate{}, false
	}
	return geomath.Coordinate{Lat: g.Latitude, Lon: g.Longitude}, true
}

type edgeOneKey struct{}

func WithEdgeOneGeo(ctx context.Context, g EdgeOneGeo) context.Context {
	return context.WithValue(ctx, edgeOneKey{}, g)
}

func EdgeOneGeoFrom(ctx context.Context) (EdgeOneGeo, bool) {
	g, ok := ctx.Value(edgeOneKey{}).(EdgeOneGeo)
	return g, ok
}

// 文档注释：解析 EdgeOne 请求头为地理信息结构
// 背景：读取自定义头中的国家/城市/坐标等字段；坐标只在经纬度均可解析且有限时视为可用，作为 geo 参数缺省时的来路坐标。
// 约束：仅进行基础的字符串读取与数值转换；异常值将被忽略。
func ParseEdgeOneGeo(r *http.Request) EdgeOneGeo {
	h := r.Header
	var g EdgeOneGeo
	g.CountryName = h.Get("X-EO-Geo-Country")
	g.CountryCodeAlpha2 = h.Get("X-EO-Geo-CountryCodeAlpha2")
	g.RegionName = h.Get("X-EO-Geo-Region")
	g.CityName = h.Get("X-EO-Geo-City")
	// 优先新版头部 X-EO-ISP，兼容旧名 X-EO-Geo-CISP
	if v := h.Get("X-EO-ISP"); v != "" {
		g.ISP = v
	} else {
		g.ISP = h.Get("X-EO-Geo-CISP")
	}
	g.ClientIP = h.Get("X-EO-Client-IP")
	if s := h.Get("X-EO-Geo-ASN"); s != "" {
		if v, e := strconv.Atoi(s); e == nil {
			g.ASN = v
		}
	}
	lat, lon := h.Get("X-EO-Geo-Latitude"), h.Get("X-EO-Geo-Longitude")
	if lat != "" && lon != "" {
		if c, err := geomath.ParseCoordinate(lat + " " + lon); err == nil {
			g.Latitude, g.Longitude, g.HasCoords = c.Lat, c.Lon, true
		}
	}
	return g
}

// EdgeOne 注入 EdgeOne 地理上下文；无任何 EdgeOne 头时不写入上下文
func EdgeOne(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g := ParseEdgeOneGeo(r)
		if g.ClientIP == "" && g.CountryCodeAlpha2 == "" && !g.HasCoords {
			next.ServeHTTP(w, r)
			return
		}
		logger.L().Debug("edgeone_geo_inject",
			"ip", g.ClientIP,
			"country", g.CountryCodeAlpha2,
			"city", g.CityName,
			"lat", g.Latitude,
			"lon", g.Longitude,
			"asn", g.ASN,
		)
		next.ServeHTTP(w, r.WithContext(WithEdgeOneGeo(r.Context(), g)))
	})
}
