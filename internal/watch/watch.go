// 包 watch：按修改时间轮询文件变化
package watch

import (
	"context"
	"os"
	"time"

	"geo-fence/internal/logger"
)

// 文档注释：mtime 轮询器
// 背景：配置与地理库通常由外部工具整体替换写入，按周期比较修改时间即可发现变化，无需 inotify。
// 约束：创建时记录各文件当前 mtime，之后只在 mtime 前进时触发；文件暂时缺失不触发。
type Poller struct {
	paths []string
	last  map[string]time.Time
}

func NewPoller(paths ...string) *Poller {
	p := &Poller{last: make(map[string]time.Time)}
	for _, path := range paths {
		if path == "" {
			continue
		}
		p.paths = append(p.paths, path)
		p.last[path] = mtime(path)
	}
	return p
}

// Changed returns the files whose mtime moved forward since the previous call.
func (p *Poller) Changed() []string {
	var out []string
	for _, path := range p.paths {
		mt := mtime(path)
		if mt.IsZero() {
			continue
		}
		if mt.After(p.last[path]) {
			p.last[path] = mt
			out = append(out, path)
		}
	}
	return out
}

// Run 每 every 检查一次，有变化时调用 onChange；ctx 取消后返回
func (p *Poller) Run(ctx context.Context, every time.Duration, onChange func(ctx context.Context, changed []string)) error {
	if every <= 0 || len(p.paths) == 0 {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	logger.L().Info("watch_start", "files", len(p.paths), "every", every.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if changed := p.Changed(); len(changed) > 0 {
				logger.L().Info("watch_changed", "files", changed)
				onChange(ctx, changed)
			}
		}
	}
}

func mtime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
