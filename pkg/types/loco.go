package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
//                              常量
// ============================================================================

const (
	// MaxFunctions 每台机车的功能数量（F0..F29）
	MaxFunctions = 30

	// MaxSpeed 最高速度级
	MaxSpeed = 126

	// SpeedUnknown 速度未知
	SpeedUnknown = -1

	// NoThrottle 未被本地手柄占用
	NoThrottle = -1

	// NoSlot 未被中继客户端占用
	NoSlot = -1

	// MaxShortAddress 短地址上限
	MaxShortAddress = 127

	// MaxLongAddress 长地址上限
	MaxLongAddress = 10239

	// DefaultLatchMask 默认锁存功能位图（F0, F1, F5-F8）
	DefaultLatchMask uint32 = 483

	// DefaultLeadOnlyMask 默认仅头车生效的功能位图（F0, F5-F7）
	DefaultLeadOnlyMask uint32 = 225
)

// ============================================================================
//                              AddressKind - 地址类型
// ============================================================================

// AddressKind DCC 地址类型
type AddressKind byte

const (
	// AddrShort 短地址
	AddrShort AddressKind = 'S'
	// AddrLong 长地址
	AddrLong AddressKind = 'L'
)

// String 返回地址类型的字符串表示
func (k AddressKind) String() string {
	if k == AddrShort {
		return "short"
	}
	return "long"
}

// KindForAddress 按地址数值推断地址类型
func KindForAddress(id uint16) AddressKind {
	if id <= MaxShortAddress {
		return AddrShort
	}
	return AddrLong
}

// FormatAddress 格式化为 WiThrottle 地址（如 L341、S3）
func FormatAddress(id uint16, kind AddressKind) string {
	if kind != AddrShort && kind != AddrLong {
		kind = KindForAddress(id)
	}
	return string(rune(kind)) + strconv.Itoa(int(id))
}

// ParseAddress 解析 WiThrottle 地址
func ParseAddress(s string) (uint16, AddressKind, error) {
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	kind := AddressKind(s[0])
	if kind != AddrShort && kind != AddrLong {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n > MaxLongAddress {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return uint16(n), kind, nil
}

// ============================================================================
//                              Locomotive - 机车
// ============================================================================

// Locomotive 机车状态
//
// 同一时刻至多被一个本地手柄或一个中继槽位占用。
type Locomotive struct {
	// ID DCC 地址
	ID uint16

	// Name 名称
	Name string

	// Kind 地址类型
	Kind AddressKind

	// Speed 速度级（-1 表示未知，0..126）
	Speed int16

	// Direction 行驶方向
	Direction Direction

	// Functions 功能状态位图
	Functions uint32

	// Latch 锁存功能位图
	Latch uint32

	// LeadOnly 仅头车生效的功能位图
	LeadOnly uint32

	// FunctionLabels 功能标签（可为空）
	FunctionLabels []string

	// Throttle 本地占用手柄编号，NoThrottle 表示未占用
	Throttle int

	// Owned 是否被本地手柄占用
	Owned bool

	// Steal 是否等待抢占确认
	Steal bool

	// StealBy 等待抢占的手柄编号
	StealBy int

	// RelaySlot 占用该机车的中继槽位，NoSlot 表示无
	RelaySlot int
}

// NewLocomotive 创建未被占用的机车
func NewLocomotive(id uint16, name string) Locomotive {
	if name == "" {
		name = strconv.Itoa(int(id))
	}
	return Locomotive{
		ID:        id,
		Name:      name,
		Kind:      KindForAddress(id),
		Speed:     SpeedUnknown,
		Direction: DirForward,
		Latch:     DefaultLatchMask,
		LeadOnly:  DefaultLeadOnlyMask,
		Throttle:  NoThrottle,
		StealBy:   NoThrottle,
		RelaySlot: NoSlot,
	}
}

// Address 返回 WiThrottle 格式地址
func (l Locomotive) Address() string {
	return FormatAddress(l.ID, l.Kind)
}

// FunctionOn 检查功能是否开启
func (l Locomotive) FunctionOn(n int) bool {
	if n < 0 || n >= MaxFunctions {
		return false
	}
	return l.Functions&(1<<uint(n)) != 0
}

// Latches 检查功能是否为锁存型
func (l Locomotive) Latches(n int) bool {
	if n < 0 || n >= MaxFunctions {
		return false
	}
	return l.Latch&(1<<uint(n)) != 0
}

// Label 返回功能标签，未定义时返回空字符串
func (l Locomotive) Label(n int) string {
	if n < 0 || n >= len(l.FunctionLabels) {
		return ""
	}
	return l.FunctionLabels[n]
}

// Clone 深拷贝
func (l Locomotive) Clone() Locomotive {
	if l.FunctionLabels != nil {
		labels := make([]string, len(l.FunctionLabels))
		copy(labels, l.FunctionLabels)
		l.FunctionLabels = labels
	}
	return l
}

// SameState 比较两个快照的可观察状态是否一致
func (l Locomotive) SameState(o Locomotive) bool {
	if l.ID != o.ID || l.Name != o.Name || l.Kind != o.Kind ||
		l.Speed != o.Speed || l.Direction != o.Direction ||
		l.Functions != o.Functions || l.Latch != o.Latch || l.LeadOnly != o.LeadOnly ||
		l.Throttle != o.Throttle || l.Owned != o.Owned ||
		l.Steal != o.Steal || l.StealBy != o.StealBy || l.RelaySlot != o.RelaySlot {
		return false
	}
	return strings.Join(l.FunctionLabels, "\x00") == strings.Join(o.FunctionLabels, "\x00")
}

// ParseFunctionLabels 解析 DCC-Ex 名册功能串（"Lights/Bell/*Horn"）
//
// 以 '*' 开头的标签为非锁存（瞬时）功能。
func ParseFunctionLabels(s string) (labels []string, latch uint32) {
	if s == "" {
		return nil, DefaultLatchMask
	}
	parts := strings.Split(s, "/")
	if len(parts) > MaxFunctions {
		parts = parts[:MaxFunctions]
	}
	labels = make([]string, len(parts))
	for i, p := range parts {
		if strings.HasPrefix(p, "*") {
			labels[i] = p[1:]
			continue
		}
		labels[i] = p
		latch |= 1 << uint(i)
	}
	return labels, latch
}
