// 包 geomath：角度换算与球面大圆距离，供租户地理围栏的半径判定使用
package geomath

import "math"

// Unit：距离单位，沿用单字符编码
type Unit byte

const (
	Miles         Unit = 'M'
	Kilometers    Unit = 'K'
	NauticalMiles Unit = 'N'
)

const (
	milesPerDegree = 60 * 1.1515
	kmPerMile      = 1.609344
	nmPerMile      = 0.8684
)

// KmPerDegree：一度大圆弧对应的千米数（与 Distance 的换算一致）
const KmPerDegree = milesPerDegree * kmPerMile

func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// 文档注释：两点大圆距离（球面余弦定理）
// 背景：先得到弧度制夹角，换算为度后按每度 60 海里 * 1.1515 得到英里，再按单位缩放。
// 约束：余弦值在反余弦前截断到 [-1, 1]，避免对跖点或近似重合点的舍入误差导致 NaN；
// 未知单位保持英里不缩放。
func Distance(lat1, lon1, lat2, lon2 float64, unit Unit) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	theta := lon1 - lon2
	c := math.Sin(DegToRad(lat1))*math.Sin(DegToRad(lat2)) +
		math.Cos(DegToRad(lat1))*math.Cos(DegToRad(lat2))*math.Cos(DegToRad(theta))
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	d := RadToDeg(math.Acos(c)) * milesPerDegree
	switch unit {
	case Kilometers:
		d *= kmPerMile
	case NauticalMiles:
		d *= nmPerMile
	}
	return d
}

// DistanceBetween is Distance over two coordinates.
func DistanceBetween(a, b Coordinate, unit Unit) float64 {
	return Distance(a.Lat, a.Lon, b.Lat, b.Lon, unit)
}

// ParseUnit accepts the single-character unit codes, case-insensitively.
func ParseUnit(s string) (Unit, bool) {
	if len(s) != 1 {
		return 0, false
	}
	switch Unit(s[0] &^ 0x20) {
	case Miles:
		return Miles, true
	case Kilometers:
		return Kilometers, true
	case NauticalMiles:
		return NauticalMiles, true
	}
	return 0, false
}
