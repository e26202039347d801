package tenant

import (
	"sync"
	"sync/atomic"

	"geo-fence/internal/logger"
)

type snapshot struct {
	dir *Directory
	gen uint64
}

// 文档注释：目录持有者（原子替换）
// 背景：读路径无锁读取当前目录；重载时构建全新目录后整体替换，旧目录在无读者引用后由 GC 回收。
// 约束：替换操作串行化；构建失败时保留旧目录。
type Holder struct {
	mu sync.Mutex
	p  atomic.Pointer[snapshot]
}

func NewHolder(d *Directory) *Holder {
	if d == nil {
		d = Disabled()
	}
	h := &Holder{}
	h.p.Store(&snapshot{dir: d, gen: 1})
	return h
}

// Load returns the current directory and its generation.
func (h *Holder) Load() (*Directory, uint64) {
	s := h.p.Load()
	return s.dir, s.gen
}

func (h *Holder) Directory() *Directory { return h.p.Load().dir }

func (h *Holder) Generation() uint64 { return h.p.Load().gen }

// Swap publishes d and returns the previous directory.
func (h *Holder) Swap(d *Directory) *Directory {
	if d == nil {
		d = Disabled()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.p.Load()
	h.p.Store(&snapshot{dir: d, gen: old.gen + 1})
	return old.dir
}

// Reload rebuilds the directory from path and swaps it in; on error the current one stays.
func (h *Holder) Reload(path string) (*Directory, error) {
	d, err := Load(path)
	if err != nil {
		logger.L().Error("tenant_reload_error", "path", path, "err", err)
		return nil, err
	}
	h.Swap(d)
	logger.L().Info("tenant_reload_ok", "path", path, "count", d.Len(), "generation", h.Generation())
	return d, nil
}
