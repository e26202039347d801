// 包 config：从环境变量与 .env 文件读取服务配置
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"geo-fence/internal/fence"
	"geo-fence/internal/geomath"
	"geo-fence/internal/utils"

	"github.com/joho/godotenv"
)

var ErrMissingGeoDB = errors.New("GEOIP_DB_PATH is required")

type Config struct {
	Addr    string
	APIBase string

	// GeoDBPaths 按顺序构成查询链；GEOIP_DB_PATH 以逗号分隔
	GeoDBPaths     []string
	TenantTable    string
	AllowedCountry string
	AdminToken     string
	ReloadEvery    time.Duration

	RateLimitEnabled bool
	RateLimitQPS     float64
	RateLimitBurst   int

	VerdictTTL time.Duration
	// GeohashPrecision 为坐标进入缓存键前的 geohash 位数；只接受最大精度
	GeohashPrecision int

	StatsQueue   int
	StatsWorkers int

	RedisEnabled bool
	Redis        utils.RedisOptions
	PGEnabled    bool
	PG           utils.PGOptions
}

// LoadEnvFiles 读取 .env 与 data/env/.env；文件不存在时忽略，已存在的环境变量不被覆盖
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// 文档注释：从环境变量构建配置
// 约束：只做解析与默认值填充；必填项检查由 Validate 完成。
func FromEnv() Config {
	c := Config{
		Addr:             envOr("ADDR", ":8080"),
		APIBase:          strings.TrimRight(envOr("API_BASE", "/api"), "/"),
		TenantTable:      strings.TrimSpace(os.Getenv("TENANT_TABLE_PATH")),
		AllowedCountry:   strings.ToUpper(envOr("ALLOWED_COUNTRY", fence.DefaultAllowedCountry)),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		ReloadEvery:      time.Duration(envInt("TENANT_RELOAD_SECONDS", 0)) * time.Second,
		RateLimitEnabled: os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:     envFloat("RATE_LIMIT_QPS", 200),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 0),
		VerdictTTL:       time.Duration(envInt("VERDICT_CACHE_TTL_S", 60)) * time.Second,
		GeohashPrecision: envInt("GEOHASH_PRECISION", geomath.MaxGeohashPrecision),
		RedisEnabled:     os.Getenv("REDIS_ENABLE") == "true",
		Redis:            utils.RedisOptionsFromEnv(),
		StatsQueue:       envInt("STATS_QUEUE_SIZE", 1024),
		StatsWorkers:     envInt("STATS_WORKERS", 2),
		PGEnabled:        os.Getenv("PG_ENABLE") == "true",
		PG:               utils.PGOptionsFromEnv(),
	}
	for _, p := range strings.Split(os.Getenv("GEOIP_DB_PATH"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			c.GeoDBPaths = append(c.GeoDBPaths, p)
		}
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = int(c.RateLimitQPS)
		if c.RateLimitBurst < 1 {
			c.RateLimitBurst = 1
		}
	}
	return c
}

func (c Config) Validate() error {
	if len(c.GeoDBPaths) == 0 {
		return ErrMissingGeoDB
	}
	if len(c.AllowedCountry) != 2 {
		return fmt.Errorf("ALLOWED_COUNTRY must be an ISO 3166-1 alpha-2 code, got %q", c.AllowedCountry)
	}
	if c.APIBase != "" && !strings.HasPrefix(c.APIBase, "/") {
		return fmt.Errorf("API_BASE must start with '/', got %q", c.APIBase)
	}
	if c.RateLimitEnabled && c.RateLimitQPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_QPS must be positive, got %v", c.RateLimitQPS)
	}
	// 低于最大精度时同一 geohash 单元可能跨越围栏半径边界，缓存的判定与实时判定不一致
	if c.GeohashPrecision != geomath.MaxGeohashPrecision {
		return fmt.Errorf("GEOHASH_PRECISION must be %d, got %d", geomath.MaxGeohashPrecision, c.GeohashPrecision)
	}
	if c.StatsQueue <= 0 || c.StatsWorkers <= 0 {
		return fmt.Errorf("STATS_QUEUE_SIZE and STATS_WORKERS must be positive, got %d/%d", c.StatsQueue, c.StatsWorkers)
	}
	return nil
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}
