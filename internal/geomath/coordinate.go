package geomath

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

var ErrBadCoordinate = errors.New("bad coordinate")

// Coordinate：十进制度数（WGS84），不做范围校验
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + " " + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// 文档注释：解析 "lat long" 文本
// 约束：以空白分隔且恰好两个字段；NaN/Inf 视为非法；经纬度范围不校验。
func ParseCoordinate(s string) (Coordinate, error) {
	f := strings.Fields(s)
	if len(f) != 2 {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	lat, err := parseFinite(f[0])
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude %q", ErrBadCoordinate, f[0])
	}
	lon, err := parseFinite(f[1])
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude %q", ErrBadCoordinate, f[1])
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrBadCoordinate
	}
	return v, nil
}

// MaxGeohashPrecision 为 geohash 最大字符数，也是缓存键使用的精度
const MaxGeohashPrecision = 12

// 文档注释：坐标量化键
// 背景：用于判定结果缓存，同一网格内的来路坐标共享键；12 位网格约 3.7cm x 1.9cm。
// 约束：精度越低，网格内的点越可能跨越半径阈值；服务配置只接受 12 位。
func GeohashKey(c Coordinate, precision int) string {
	if precision <= 0 || precision > MaxGeohashPrecision {
		precision = MaxGeohashPrecision
	}
	return geohash.EncodeWithPrecision(c.Lat, c.Lon, precision)
}
