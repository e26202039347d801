// 包 cache：基于 Redis 的判定结果缓存与短周期去重
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"geo-fence/internal/fence"
	"geo-fence/internal/logger"
	"geo-fence/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 60 * time.Second

// 文档注释：判定缓存
// 背景：同一租户、同一来源在短时间内重复判定的结果相同；键中包含目录代数，重载后旧键自然失效。
// 约束：只缓存判定，不缓存输入错误；Redis 异常一律按未命中处理，不影响判定。nil 接收者可用，表示禁用。
type Verdicts struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewVerdicts(rc *redis.Client, ttl time.Duration) *Verdicts {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Verdicts{rc: rc, ttl: ttl}
}

// 文档注释：判定缓存键
// 背景：realm 与 target 来自调用方，可能包含 ':'；各字段以长度前缀编码后取 sha256，避免拼接歧义。
// 约束：形如 fence:<op>:<gen>:<hex>；op 与 gen 保持可读，便于按前缀排查。
func Key(op string, gen uint64, realm, target, geohash string) string {
	h := sha256.New()
	for _, f := range [...]string{realm, target, geohash} {
		var n [binary.MaxVarintLen64]byte
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(f)))])
		h.Write([]byte(f))
	}
	var b strings.Builder
	b.WriteString("fence:")
	b.WriteString(op)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(gen, 10))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(h.Sum(nil)))
	return b.String()
}

func (v *Verdicts) Get(ctx context.Context, key string) (fence.Decision, bool) {
	if v == nil {
		return fence.Decision{}, false
	}
	s, err := v.rc.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.L().Warn("verdict_cache_get_error", "err", err)
		}
		metrics.CacheMissesTotal.Inc()
		return fence.Decision{}, false
	}
	var d fence.Decision
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		metrics.CacheMissesTotal.Inc()
		return fence.Decision{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return d, true
}

func (v *Verdicts) Set(ctx context.Context, key string, d fence.Decision) {
	if v == nil {
		return
	}
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := v.rc.Set(ctx, key, b, v.ttl).Err(); err != nil {
		logger.L().Warn("verdict_cache_set_error", "err", err)
	}
}
