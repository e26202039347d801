// 包 tenant：租户地理围栏目录，负责从平面文件构建只读目录并支持整体替换
package tenant

import (
	"sort"
	"time"

	"geo-fence/internal/geomath"
)

// Capacity：沿用的槽位数（2 的幂），仅用于槽位诊断
const Capacity = 512

// MaxRealmLen：realm 最大字节数
const MaxRealmLen = 255

type FenceType int

const (
	CityList FenceType = iota
	Radial
)

// RadialCode：配置文件中表示半径围栏的类型字符，其余字符均视为城市列表
const RadialCode = 'G'

func (t FenceType) String() string {
	if t == Radial {
		return "radial"
	}
	return "city_list"
}

// FenceTypeFromCode maps the single configuration character to a fence type.
func FenceTypeFromCode(c byte) FenceType {
	if c == RadialCode {
		return Radial
	}
	return CityList
}

// 文档注释：单个租户的围栏策略
// 约束：Locations 为 1~5 个条目；Radial 时 Points 与 Locations 一一对应。
type Record struct {
	Realm     string
	Fence     FenceType
	Code      byte
	RadiusKm  float64
	Locations []string
	Points    []geomath.Coordinate
	Slot      uint32
}

// Hash：DJB2 字符串哈希并截断到 [0, Capacity)
func Hash(realm string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(realm); i++ {
		h = h*33 + uint32(realm[i])
	}
	return h & (Capacity - 1)
}

// 文档注释：租户目录
// 背景：启动时构建一次，之后只读；按 realm 精确索引，不存在槽位冲突覆盖。
// 约束：构建完成后不得修改，热加载通过 Holder 替换整个目录实现。
type Directory struct {
	enabled  bool
	source   string
	records  map[string]*Record
	slots    map[uint32][]string
	loadedAt time.Time
}

// Disabled returns the "feature not enabled" directory.
func Disabled() *Directory {
	return &Directory{}
}

func newDirectory(source string) *Directory {
	return &Directory{
		enabled:  true,
		source:   source,
		records:  make(map[string]*Record),
		slots:    make(map[uint32][]string),
		loadedAt: time.Now(),
	}
}

// add 仅在构建期调用；重复 realm 由调用方转换为 ConfigError
func (d *Directory) add(r *Record) bool {
	if _, ok := d.records[r.Realm]; ok {
		return false
	}
	r.Slot = Hash(r.Realm)
	d.records[r.Realm] = r
	d.slots[r.Slot] = append(d.slots[r.Slot], r.Realm)
	return true
}

func (d *Directory) Enabled() bool { return d != nil && d.enabled }

// Lookup 返回已配置的租户；未知 realm 或无位置条目时返回 false
func (d *Directory) Lookup(realm string) (*Record, bool) {
	if !d.Enabled() {
		return nil, false
	}
	r, ok := d.records[realm]
	if !ok || len(r.Locations) == 0 {
		return nil, false
	}
	return r, true
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

func (d *Directory) Source() string      { return d.source }
func (d *Directory) LoadedAt() time.Time { return d.loadedAt }

// Realms returns the configured realms in lexical order.
func (d *Directory) Realms() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.records))
	for k := range d.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Slot is the DJB2 slot a realm would occupy in a Capacity-sized table.
func (d *Directory) Slot(realm string) uint32 { return Hash(realm) }

// 文档注释：槽位冲突诊断
// 背景：不同 realm 落在同一槽位时在旧的定长表中会相互覆盖；此处仅报告，便于运维核对配置。
func (d *Directory) Collisions() map[uint32][]string {
	out := make(map[uint32][]string)
	if d == nil {
		return out
	}
	for slot, realms := range d.slots {
		if len(realms) > 1 {
			cp := append([]string(nil), realms...)
			sort.Strings(cp)
			out[slot] = cp
		}
	}
	return out
}
