package store

import (
	"context"
	"sync"
	"time"

	"geo-fence/internal/logger"
	"geo-fence/internal/metrics"
)

// UnknownRealm 为目录中不存在的 realm 统一记账的桶名
const UnknownRealm = "(unknown)"

// DecisionWriter 由 *Store 实现；测试中可替换
type DecisionWriter interface {
	RecordDecision(ctx context.Context, realm, filter string, verdict int, reason string) error
}

type decisionRow struct {
	realm, filter, reason string
	verdict               int
}

// 文档注释：判定统计的异步写入队列
// 背景：请求路径只做一次非阻塞入队；固定数量的 worker 串行写库，数据库变慢时队列满即丢弃并计数。
// 约束：Close 之后 Record 一律丢弃；Close 等待队列中已有条目写完。nil 接收者可用，表示禁用。
type Recorder struct {
	w       DecisionWriter
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan decisionRow
	wg     sync.WaitGroup
}

func NewRecorder(w DecisionWriter, queue, workers int) *Recorder {
	if w == nil {
		return nil
	}
	if queue <= 0 {
		queue = 1024
	}
	if workers <= 0 {
		workers = 2
	}
	r := &Recorder{w: w, timeout: 2 * time.Second, ch: make(chan decisionRow, queue)}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.loop()
	}
	return r
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for row := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		_ = r.w.RecordDecision(ctx, row.realm, row.filter, row.verdict, row.reason)
		cancel()
	}
}

// Record enqueues one decision and reports whether it was accepted.
func (r *Recorder) Record(realm, filter string, verdict int, reason string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.ch <- decisionRow{realm: realm, filter: filter, verdict: verdict, reason: reason}:
		return true
	default:
		metrics.StatsDroppedTotal.Inc()
		return false
	}
}

func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	r.wg.Wait()
	logger.L().Debug("stats_recorder_closed")
}
