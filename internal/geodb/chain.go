package geodb

import "context"

// 文档注释：链式查询
// 背景：按顺序询问各数据源，首个命中即返回；典型顺序为人工覆盖表在前、MMDB 在后。
// 约束：nil 成员被跳过；全部未命中视为解析失败。
type Chain struct {
	list []Locator
}

func NewChain(list ...Locator) *Chain {
	return &Chain{list: list}
}

func (c *Chain) Locate(ctx context.Context, addr string) (Result, bool) {
	for _, l := range c.list {
		if l == nil {
			continue
		}
		if r, ok := l.Locate(ctx, addr); ok {
			return r, true
		}
	}
	return Result{}, false
}

// Match asks each member that can produce full records.
func (c *Chain) Match(ctx context.Context, addr string) (Match, bool) {
	for _, l := range c.list {
		m, ok := l.(Matcher)
		if !ok {
			continue
		}
		if r, ok := m.Match(ctx, addr); ok {
			return r, true
		}
	}
	return Match{}, false
}
