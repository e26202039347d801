package geodb

import (
	"context"
	"sync/atomic"
)

type entry struct{ l Locator }

// 文档注释：可热替换的查询器
// 背景：地理库文件更新后重新打开并原子替换，读路径不加锁、不中断。
// 约束：未设置时所有查询均未命中。
type Dynamic struct {
	v atomic.Pointer[entry]
}

func NewDynamic(l Locator) *Dynamic {
	d := &Dynamic{}
	d.Set(l)
	return d
}

// Set publishes l and returns the previous locator (nil if none).
func (d *Dynamic) Set(l Locator) Locator {
	old := d.v.Swap(&entry{l: l})
	if old == nil {
		return nil
	}
	return old.l
}

func (d *Dynamic) current() Locator {
	e := d.v.Load()
	if e == nil {
		return nil
	}
	return e.l
}

func (d *Dynamic) Locate(ctx context.Context, addr string) (Result, bool) {
	l := d.current()
	if l == nil {
		return Result{}, false
	}
	return l.Locate(ctx, addr)
}

func (d *Dynamic) Match(ctx context.Context, addr string) (Match, bool) {
	m, ok := d.current().(Matcher)
	if !ok {
		return Match{}, false
	}
	return m.Match(ctx, addr)
}
