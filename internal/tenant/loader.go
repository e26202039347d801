package tenant

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"geo-fence/internal/geomath"
	"geo-fence/internal/logger"
)

// MaxLineLen：单行最大字节数，超出视为配置错误
const MaxLineLen = 4096

// 文档注释：从平面文件加载租户目录
// 背景：每行一个租户 "realm radius type loc1,loc2,..."，# 开头为注释；路径为空表示功能未启用。
// 约束：任一行格式错误即中止加载（致命），不允许半初始化目录进入服务；空路径返回 Disabled() 且无错误。
func Load(path string) (*Directory, error) {
	if strings.TrimSpace(path) == "" {
		logger.L().Info("tenant_table_disabled", "reason", "path_not_set")
		return Disabled(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Kind: ErrUnreadable, Path: path, Err: err}
	}
	defer f.Close()
	return LoadReader(f, path)
}

// LoadReader parses a tenant table from r. name is used in errors and logs only.
func LoadReader(r io.Reader, name string) (*Directory, error) {
	d := newDirectory(name)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 512), MaxLineLen)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				ce.Path = name
				ce.Line = n
				return nil, ce
			}
			return nil, &ConfigError{Kind: ErrMalformedLine, Path: name, Line: n, Err: err}
		}
		if !d.add(rec) {
			return nil, &ConfigError{Kind: ErrDuplicateRealm, Path: name, Line: n, Realm: rec.Realm}
		}
		logger.L().Debug("tenant_slot", "realm", rec.Realm, "slot", rec.Slot, "fence", rec.Fence.String(), "locations", len(rec.Locations))
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ConfigError{Kind: ErrLineTooLong, Path: name, Line: n + 1}
		}
		return nil, &ConfigError{Kind: ErrUnreadable, Path: name, Err: err}
	}
	for slot, realms := range d.Collisions() {
		logger.L().Warn("tenant_slot_collision", "slot", slot, "realms", strings.Join(realms, ","))
	}
	logger.L().Info("tenant_table_loaded", "source", name, "count", d.Len())
	return d, nil
}

// parseLine 解析单行；字段不足、半径非法、类型非单字符均为 ErrMalformedLine
func parseLine(line string) (*Record, error) {
	realm, rest := nextField(line)
	radiusStr, rest := nextField(rest)
	code, rest := nextField(rest)
	locs := strings.TrimSpace(rest)
	if realm == "" || radiusStr == "" || code == "" || locs == "" {
		return nil, &ConfigError{Kind: ErrMalformedLine, Realm: realm, Err: errors.New("expected: realm radius type locations")}
	}
	if len(realm) > MaxRealmLen {
		return nil, &ConfigError{Kind: ErrMalformedLine, Err: fmt.Errorf("realm longer than %d bytes", MaxRealmLen)}
	}
	if len(code) != 1 {
		return nil, &ConfigError{Kind: ErrMalformedLine, Realm: realm, Err: fmt.Errorf("fence type %q is not a single character", code)}
	}
	radius, err := strconv.ParseFloat(radiusStr, 64)
	if err != nil || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, &ConfigError{Kind: ErrMalformedLine, Realm: realm, Err: fmt.Errorf("bad radius %q", radiusStr)}
	}
	entries, err := ParseLocations(locs)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Realm = realm
		}
		return nil, err
	}
	rec := &Record{
		Realm:     realm,
		Fence:     FenceTypeFromCode(code[0]),
		Code:      code[0],
		RadiusKm:  radius,
		Locations: entries,
	}
	if rec.Fence == Radial {
		if radius <= 0 {
			return nil, &ConfigError{Kind: ErrMalformedLine, Realm: realm, Err: fmt.Errorf("radius must be positive, got %v", radius)}
		}
		rec.Points = make([]geomath.Coordinate, 0, len(entries))
		for _, e := range entries {
			c, err := geomath.ParseCoordinate(e)
			if err != nil {
				return nil, &ConfigError{Kind: ErrMalformedLine, Realm: realm, Err: err}
			}
			rec.Points = append(rec.Points, c)
		}
	}
	return rec, nil
}

// nextField 返回首个空白分隔字段与去除前导空白的剩余部分
func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}
