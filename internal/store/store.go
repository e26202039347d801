// 包 store: 提供与 PostgreSQL 的数据访问层，包含判定统计与地理覆盖表读写
package store

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"geo-fence/internal/geodb"
	"geo-fence/internal/logger"
)

// Store: 数据库访问入口，持有连接池并提供统计/覆盖表接口
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// 文档注释：记录一次判定
// 背景：按 (日期, realm, 过滤器, 判定, 原因) 累加计数，用于运营报表；失败不影响判定结果。
func (s *Store) RecordDecision(ctx context.Context, realm, filter string, verdict int, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _fence_stats_daily(day, realm, filter, verdict, reason, decisions)
		VALUES(current_date, $1, $2, $3, $4, 1)
		ON CONFLICT (day, realm, filter, verdict, reason) DO UPDATE SET decisions=_fence_stats_daily.decisions+1`,
		realm, filter, verdict, reason,
	)
	if err != nil {
		logger.L().Warn("stats_record_error", "realm", realm, "err", err)
	}
	return err
}

// Totals: 统计返回结构，包含累计与当日判定次数
type Totals struct {
	Total        int64 `json:"total"`
	Today        int64 `json:"today"`
	TodayAllowed int64 `json:"today_allowed"`
	TodayBlocked int64 `json:"today_blocked"`
}

// GetTotals: 读取累计与当日判定次数，用于接口返回
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(decisions),0) FROM _fence_stats_daily`)
	if err := row.Scan(&t.Total); err != nil {
		return nil, err
	}
	row = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(decisions),0),
			COALESCE(SUM(decisions) FILTER (WHERE verdict > 0),0),
			COALESCE(SUM(decisions) FILTER (WHERE verdict < 0),0)
		FROM _fence_stats_daily WHERE day=current_date`)
	if err := row.Scan(&t.Today, &t.TodayAllowed, &t.TodayBlocked); err != nil {
		return nil, err
	}
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}

// RealmCount is one row of the per-realm breakdown.
type RealmCount struct {
	Realm     string `json:"realm"`
	Filter    string `json:"filter"`
	Verdict   int    `json:"result"`
	Reason    string `json:"reason"`
	Decisions int64  `json:"decisions"`
}

// TodayByRealm returns today's counters for realm (all realms when empty).
func (s *Store) TodayByRealm(ctx context.Context, realm string, limit int) ([]RealmCount, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT realm, filter, verdict, reason, decisions FROM _fence_stats_daily
		WHERE day=current_date AND ($1 = '' OR realm=$1)
		ORDER BY decisions DESC LIMIT $2`, realm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RealmCount
	for rows.Next() {
		var c RealmCount
		if err := rows.Scan(&c.Realm, &c.Filter, &c.Verdict, &c.Reason, &c.Decisions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var ErrBadIP = errors.New("bad ip")

// Override is one manual geo correction.
type Override struct {
	IP      string
	Country string
	City    string
	Lat     sql.NullFloat64
	Lon     sql.NullFloat64
}

func canonicalIP(ip string) (string, error) {
	p := geodb.ParseAddr(ip)
	if p == nil {
		return "", ErrBadIP
	}
	if v4 := p.To4(); v4 != nil {
		return net.IP(v4).String(), nil
	}
	return p.String(), nil
}

// UpsertOverride: 新增或更新覆盖记录；IP 规范化后作为主键
func (s *Store) UpsertOverride(ctx context.Context, o Override) error {
	ip, err := canonicalIP(o.IP)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _fence_geo_overrides(ip, country, city, lat, lon) VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (ip) DO UPDATE SET country=EXCLUDED.country, city=EXCLUDED.city, lat=EXCLUDED.lat, lon=EXCLUDED.lon, updated_at=now()`,
		ip, o.Country, o.City, o.Lat, o.Lon,
	)
	return err
}

// DeleteOverride reports whether a row was removed.
func (s *Store) DeleteOverride(ctx context.Context, ip string) (bool, error) {
	key, err := canonicalIP(ip)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM _fence_geo_overrides WHERE ip=$1`, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListOverrides(ctx context.Context, limit int) ([]Override, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT ip, country, city, lat, lon FROM _fence_geo_overrides ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.IP, &o.Country, &o.City, &o.Lat, &o.Lon); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
