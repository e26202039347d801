package geodb

import (
	"context"
	"database/sql"

	"geo-fence/internal/logger"
)

// 文档注释：人工覆盖表（精确 IP）
// 背景：运维对个别地址纠正国家/城市/坐标，置于查询链首位；数据存于 Postgres，启动与重载时整体读入内存。
// 约束：键为规范化后的 IP 字符串；构建后只读。
type Overrides struct {
	m map[string]Result
}

// NewOverrides indexes recs by canonical IP; entries with unparsable keys are dropped.
func NewOverrides(recs map[string]Result) *Overrides {
	o := &Overrides{m: make(map[string]Result, len(recs))}
	for k, v := range recs {
		ip := ParseAddr(k)
		if ip == nil {
			continue
		}
		o.m[ip.String()] = v
	}
	return o
}

// 文档注释：从数据库读取覆盖表
// 返回：构建好的 Overrides；异常包含查询失败与扫描错误。
func LoadOverrides(ctx context.Context, db *sql.DB) (*Overrides, error) {
	rows, err := db.QueryContext(ctx, `SELECT ip, country, city, lat, lon FROM _fence_geo_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs := make(map[string]Result)
	for rows.Next() {
		var ip string
		var r Result
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&ip, &r.Country, &r.City, &lat, &lon); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid {
			r.Lat, r.Lon, r.HasCoords = lat.Float64, lon.Float64, true
		}
		recs[ip] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	o := NewOverrides(recs)
	logger.L().Info("geodb_overrides_loaded", "count", o.Len())
	return o, nil
}

func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.m)
}

func (o *Overrides) Locate(_ context.Context, addr string) (Result, bool) {
	if o == nil {
		return Result{}, false
	}
	ip := ParseAddr(addr)
	if ip == nil {
		return Result{}, false
	}
	r, ok := o.m[ip.String()]
	return r, ok
}
