package geodb

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"geo-fence/internal/logger"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

// 文档注释：MaxMind 格式地理库
// 背景：geoip2 负责类型化的 City/Country 解码（过滤路径）；maxminddb 原始读取器负责带网段信息的完整记录（match 路径）。
// 约束：只读，可并发使用；Close 后不得再查询。
type MMDB struct {
	path    string
	typed   *geoip2.Reader
	raw     *maxminddb.Reader
	hasCity bool
}

// Open maps the database at path; failure is fatal for the service.
func Open(path string) (*MMDB, error) {
	if path == "" {
		return nil, fmt.Errorf("geodb: empty database path")
	}
	typed, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geodb: open %s: %w", path, err)
	}
	raw, err := maxminddb.Open(path)
	if err != nil {
		typed.Close()
		return nil, fmt.Errorf("geodb: open raw %s: %w", path, err)
	}
	md := raw.Metadata
	m := &MMDB{path: path, typed: typed, raw: raw, hasCity: strings.Contains(md.DatabaseType, "City")}
	logger.L().Info("geodb_open",
		"path", path,
		"type", md.DatabaseType,
		"ip_version", md.IPVersion,
		"nodes", md.NodeCount,
		"build_epoch", md.BuildEpoch,
	)
	return m, nil
}

func (m *MMDB) Path() string { return m.path }

// 文档注释：过滤路径的地址解析
// 背景：Country 类型的库没有城市与坐标，只返回国家代码；City 库返回英文城市名与坐标。
// 约束：非字面 IP、库中无记录或解码失败均视为解析失败。
func (m *MMDB) Locate(_ context.Context, addr string) (Result, bool) {
	ip := ParseAddr(addr)
	if ip == nil {
		logger.L().Debug("geodb_bad_addr", "addr", addr)
		return Result{}, false
	}
	if !m.hasCity {
		rec, err := m.typed.Country(ip)
		if err != nil {
			logger.L().Warn("geodb_lookup_error", "addr", addr, "err", err)
			return Result{}, false
		}
		if rec.Country.IsoCode == "" {
			return Result{}, false
		}
		return Result{Country: rec.Country.IsoCode}, true
	}
	rec, err := m.typed.City(ip)
	if err != nil {
		logger.L().Warn("geodb_lookup_error", "addr", addr, "err", err)
		return Result{}, false
	}
	// 未命中时 geoip2 返回零值记录
	if rec.Country.IsoCode == "" && rec.City.GeoNameID == 0 && rec.Location.AccuracyRadius == 0 {
		return Result{}, false
	}
	res := Result{
		Country: rec.Country.IsoCode,
		City:    rec.City.Names["en"],
		Lat:     rec.Location.Latitude,
		Lon:     rec.Location.Longitude,
	}
	res.HasCoords = rec.Location.AccuracyRadius > 0 || res.Lat != 0 || res.Lon != 0
	return res, true
}

// 文档注释：match 路径的完整记录
// 背景：通过原始读取器 LookupNetwork 同时取得记录与所在网段，网段前缀长度作为 nmask 输出。
func (m *MMDB) Match(_ context.Context, addr string) (Match, bool) {
	ip := ParseAddr(addr)
	if ip == nil {
		return Match{}, false
	}
	var rec geoip2.City
	network, ok, err := m.raw.LookupNetwork(ip, &rec)
	if err != nil {
		logger.L().Warn("geodb_match_error", "addr", addr, "err", err)
		return Match{}, false
	}
	if !ok {
		return Match{}, false
	}
	return matchFromCity(ip, network, &rec), true
}

func matchFromCity(ip net.IP, network *net.IPNet, rec *geoip2.City) Match {
	out := Match{
		IP:          ip.String(),
		CountryCode: rec.Country.IsoCode,
		Country:     rec.Country.Names["en"],
		City:        rec.City.Names["en"],
		Zip:         rec.Postal.Code,
		TimeZone:    rec.Location.TimeZone,
		Continent:   rec.Continent.Code,
	}
	if len(rec.Subdivisions) > 0 {
		out.RegionCode = rec.Subdivisions[0].IsoCode
		out.Region = rec.Subdivisions[0].Names["en"]
	}
	if rec.Location.AccuracyRadius > 0 || rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
		out.Lat = strconv.FormatFloat(rec.Location.Latitude, 'f', -1, 64)
		out.Lon = strconv.FormatFloat(rec.Location.Longitude, 'f', -1, 64)
	}
	if rec.Location.MetroCode > 0 {
		out.Metro = strconv.FormatUint(uint64(rec.Location.MetroCode), 10)
	}
	if network != nil {
		ones, _ := network.Mask.Size()
		out.Netmask = strconv.Itoa(ones)
	}
	return out
}

func (m *MMDB) Close() error {
	err1 := m.raw.Close()
	err2 := m.typed.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
