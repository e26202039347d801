// 包 utils：Redis 与 Postgres 连接工具，统一环境变量读取
package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"geo-fence/internal/logger"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Host string
	Port string
	Pass string
	DB   int
}

func (o RedisOptions) Addr() string { return o.Host + ":" + o.Port }

// RedisOptionsFromEnv：读取 REDIS_HOST/REDIS_PORT/REDIS_PASS/REDIS_DB
// 约束：REDIS_DB 解析失败时忽略并回退到 0
func RedisOptionsFromEnv() RedisOptions {
	o := RedisOptions{Host: os.Getenv("REDIS_HOST"), Port: os.Getenv("REDIS_PORT"), Pass: os.Getenv("REDIS_PASS")}
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.Port == "" {
		o.Port = "6379"
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			o.DB = n
		}
	}
	return o
}

// OpenRedis：打开客户端并做一次带超时的 PING；不可达时返回错误，由调用方决定降级
func OpenRedis(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: o.Addr(), Password: o.Pass, DB: o.DB})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	logger.L().Debug("redis_open", "addr", o.Addr(), "db", o.DB)
	return c, nil
}
