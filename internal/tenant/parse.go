package tenant

import (
	"fmt"
	"strings"
)

const (
	MaxLocationsPerTenant = 5
	// MaxLocationLen 为单个位置条目去除首尾空白后的最大字节数
	MaxLocationLen = 127
)

// 文档注释：拆分逗号分隔的位置列表
// 背景：同一格式承载城市名列表与 "lat long" 坐标对列表；每段去除首尾空白后保留原样。
// 约束：最多 5 段，超出返回 ErrTooManyLocations；空段与超长段分别返回 ErrEmptyLocation/ErrLocationTooLong。
func ParseLocations(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	if len(parts) > MaxLocationsPerTenant {
		return nil, &ConfigError{Kind: ErrTooManyLocations}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		loc, err := TrimCopy(p)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// TrimCopy strips leading and trailing whitespace and enforces MaxLocationLen.
func TrimCopy(token string) (string, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return "", &ConfigError{Kind: ErrEmptyLocation}
	}
	if len(s) > MaxLocationLen {
		return "", &ConfigError{Kind: ErrLocationTooLong, Err: fmt.Errorf("%d bytes, max %d", len(s), MaxLocationLen)}
	}
	return strings.Clone(s), nil
}
