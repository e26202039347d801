package migrate

import (
	"context"
	"database/sql"

	"geo-fence/internal/logger"
)

// Statements is the schema applied by EnsureSchema, in order.
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _fence_stats_daily (
		day DATE NOT NULL,
		realm TEXT NOT NULL,
		filter TEXT NOT NULL,
		verdict SMALLINT NOT NULL,
		reason TEXT NOT NULL,
		decisions BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (day, realm, filter, verdict, reason)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fence_stats_realm ON _fence_stats_daily(realm, day)`,
	`CREATE TABLE IF NOT EXISTS _fence_geo_overrides (
		ip TEXT PRIMARY KEY,
		country TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// 背景：首次运行自动创建统计与覆盖表
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range Statements {
		if _, err := db.ExecContext(ctx, s); err != nil {
			logger.L().Error("schema_stmt_error", "index", i, "err", err)
			return err
		}
	}
	logger.L().Info("schema_ready", "statements", len(Statements))
	return nil
}
