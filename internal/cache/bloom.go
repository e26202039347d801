package cache

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 文档注释：计算布隆过滤器位置
// 参数：data 为参与哈希的字节序列，m 为位图大小，k 为哈希次数。
// 背景：使用 FNV64a 结合索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 文档注释：短周期来源去重
// 背景：被拒绝的来源往往重复重试；仅在窗口内首次出现时输出告警日志与计数，避免日志被刷屏。
// 约束：存在误判（把新来源当作已见过）的可能，只用于降噪，不参与判定。nil 接收者视为“总是首次”。
type Seen struct {
	rc  *redis.Client
	m   uint32
	k   int
	ttl time.Duration
}

func NewSeen(rc *redis.Client, ttl time.Duration) *Seen {
	if rc == nil {
		return nil
	}
	return &Seen{rc: rc, m: 1 << 20, k: 4, ttl: ttl}
}

// First reports whether data is new under key; errors count as new.
func (s *Seen) First(ctx context.Context, key string, data []byte) bool {
	if s == nil {
		return true
	}
	positions := bloomPositions(data, s.m, s.k)
	seen := true
	for _, p := range positions {
		b, err := s.rc.GetBit(ctx, key, p).Result()
		if err != nil {
			return true
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return false
	}
	pipe := s.rc.Pipeline()
	for _, p := range positions {
		pipe.SetBit(ctx, key, p, 1)
	}
	pipe.Expire(ctx, key, s.ttl)
	_, _ = pipe.Exec(ctx)
	return true
}
