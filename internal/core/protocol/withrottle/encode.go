package withrottle

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ProtocolVersion 本实现声明的协议版本
const ProtocolVersion = "2.0"

// DefaultThrottle 未知占用手柄时使用的手柄字母
const DefaultThrottle byte = 'T'

// ============================================================================
//                              通用（客户端与服务器共用）
// ============================================================================

func throttleFrame(th byte, op byte, key, payload string) string {
	var b strings.Builder
	b.Grow(len(key) + len(payload) + 6)
	b.WriteByte('M')
	b.WriteByte(th)
	b.WriteByte(op)
	b.WriteString(key)
	b.WriteString(ActionSep)
	b.WriteString(payload)
	return b.String()
}

// Speed 速度 "MTAL341<;>V50"
func Speed(th byte, addr string, speed int) string {
	return throttleFrame(th, OpAction, addr, "V"+strconv.Itoa(speed))
}

// Direction 方向 "MTAL341<;>R1"，Stop/Unchanged 不产生帧
func Direction(th byte, addr string, dir types.Direction) string {
	switch dir {
	case types.DirForward:
		return throttleFrame(th, OpAction, addr, "R1")
	case types.DirReverse:
		return throttleFrame(th, OpAction, addr, "R0")
	default:
		return ""
	}
}

// Function 功能 "MTAL341<;>F112"
//
// 客户端角色中 on 表示按下/松开，服务器角色中表示功能当前状态。
func Function(th byte, addr string, fn int, on bool) string {
	return throttleFrame(th, OpAction, addr, "F"+bit(on)+strconv.Itoa(fn))
}

// Power 电源 "PPA1"
func Power(p types.PowerState) string {
	switch p {
	case types.PowerOn:
		return "PPA1"
	case types.PowerOff:
		return "PPA0"
	default:
		return "PPA2"
	}
}

func bit(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// ============================================================================
//                              客户端角色（发往 WiThrottle 服务器）
// ============================================================================

// Name 客户端名称
func Name(name string) string { return "N" + name }

// HardwareID 设备标识
func HardwareID(id string) string { return "HU" + id }

// HeartbeatOn 开启心跳监测
func HeartbeatOn() string { return "*+" }

// Heartbeat 心跳
func Heartbeat() string { return "*" }

// Quit 退出
func Quit() string { return "Q" }

// Acquire 请求占用机车
func Acquire(th byte, addr string) string {
	return throttleFrame(th, OpAdd, addr, addr)
}

// Steal 确认抢占机车
func Steal(th byte, addr string) string {
	return throttleFrame(th, OpSteal, addr, addr)
}

// Release 释放机车
func Release(th byte, addr string) string {
	return throttleFrame(th, OpRemove, addr, "r")
}

// ForceFunction 强制设置功能状态 "MTAL341<;>f112"
func ForceFunction(th byte, addr string, fn int, on bool) string {
	return throttleFrame(th, OpAction, addr, "f"+bit(on)+strconv.Itoa(fn))
}

// EStop 紧急停车
func EStop(th byte, addr string) string {
	return throttleFrame(th, OpAction, addr, "X")
}

// Turnout 道岔命令，action 为 'C'、'T' 或 '2'（切换）
func Turnout(action byte, sysName string) string {
	return "PTA" + string(action) + sysName
}

// Route 激活进路
func Route(sysName string) string { return "PRA2" + sysName }

// ============================================================================
//                              服务器角色（发往中继客户端）
// ============================================================================

// Version 协议版本
func Version() string { return "VN" + ProtocolVersion }

// ServerType 服务器类型
func ServerType(t string) string { return "HT" + t }

// ServerDesc 服务器描述
func ServerDesc(d string) string { return "Ht" + d }

// Alert 弹出提示
func Alert(msg string) string { return "HM" + msg }

// Info 普通信息
func Info(msg string) string { return "Hm" + msg }

// HeartbeatInterval 心跳间隔协商
func HeartbeatInterval(seconds int) string { return "*" + strconv.Itoa(seconds) }

// RosterList 机车名册
func RosterList(locos []types.Locomotive) string {
	fields := make([][]string, 0, len(locos)+1)
	fields = append(fields, []string{"RL" + strconv.Itoa(len(locos))})
	for _, l := range locos {
		kind := l.Kind
		if kind != types.AddrShort && kind != types.AddrLong {
			kind = types.KindForAddress(l.ID)
		}
		fields = append(fields, []string{l.Name, strconv.Itoa(int(l.ID)), string(rune(kind))})
	}
	return Join(fields)
}

// PowerState 电源状态
func PowerState(p types.PowerState) string { return Power(p) }

// TurnoutLabels 道岔状态标签
func TurnoutLabels(labels map[types.TurnoutState]string) string {
	states := []types.TurnoutState{types.TurnoutClosed, types.TurnoutThrown, types.TurnoutUnknown, types.TurnoutInconsistent}
	fields := [][]string{{"PTT"}, {"Turnouts", "Turnout"}}
	for _, st := range states {
		label := labels[st]
		if label == "" {
			label = defaultTurnoutLabel(st)
		}
		fields = append(fields, []string{label, strconv.Itoa(int(st))})
	}
	return Join(fields)
}

func defaultTurnoutLabel(st types.TurnoutState) string {
	switch st {
	case types.TurnoutClosed:
		return "Closed"
	case types.TurnoutThrown:
		return "Thrown"
	case types.TurnoutInconsistent:
		return "Inconsistent"
	default:
		return "Unknown"
	}
}

// TurnoutList 道岔列表
func TurnoutList(turnouts []types.Turnout) string {
	fields := make([][]string, 0, len(turnouts)+1)
	fields = append(fields, []string{"PTL"})
	for _, t := range turnouts {
		fields = append(fields, []string{t.SysName, t.UserName, strconv.Itoa(int(t.State))})
	}
	return Join(fields)
}

// TurnoutState 道岔状态 "PTA2LT12"
func TurnoutState(t types.Turnout) string {
	return "PTA" + strconv.Itoa(int(t.State)) + t.SysName
}

// RouteLabels 进路状态标签
func RouteLabels() string {
	return Join([][]string{
		{"PRT"},
		{"Routes", "Route"},
		{"Active", "2"},
		{"Inactive", "4"},
		{"Unknown", "0"},
		{"Inconsistent", "8"},
	})
}

// RouteList 进路列表
func RouteList(routes []types.Route) string {
	fields := make([][]string, 0, len(routes)+1)
	fields = append(fields, []string{"PRL"})
	for _, r := range routes {
		fields = append(fields, []string{r.SysName, r.UserName, strconv.Itoa(RouteStateCode(r.State))})
	}
	return Join(fields)
}

// RouteState 进路状态 "PRA2IR1"
func RouteState(r types.Route) string {
	return "PRA" + strconv.Itoa(RouteStateCode(r.State)) + r.SysName
}

// FastClock 快钟 "PFT<seconds><;><rate>"
func FastClock(t types.FastClockTime) string {
	return "PFT" + strconv.FormatUint(uint64(t.Seconds), 10) + ActionSep + strconv.FormatFloat(t.Rate, 'f', 1, 64)
}

// LocoAdded 机车已被手柄占用
func LocoAdded(th byte, addr string) string {
	return throttleFrame(th, OpAdd, addr, "")
}

// LocoRemoved 机车已释放
func LocoRemoved(th byte, addr string) string {
	return throttleFrame(th, OpRemove, addr, "")
}

// LocoLabels 功能标签 "MTLL341<;>]\[Lights]\[Bell"
func LocoLabels(th byte, l types.Locomotive) string {
	n := len(l.FunctionLabels)
	if n > types.MaxFunctions {
		n = types.MaxFunctions
	}
	return throttleFrame(th, OpLabels, l.Address(), FieldSep+strings.Join(l.FunctionLabels[:n], FieldSep))
}

// LocoSpeed 速度通知
func LocoSpeed(th byte, l types.Locomotive) string {
	speed := int(l.Speed)
	if speed < 0 {
		speed = 0
	}
	return Speed(th, l.Address(), speed)
}

// LocoDirection 方向通知
func LocoDirection(th byte, l types.Locomotive) string {
	return Direction(th, l.Address(), l.Direction)
}

// LocoFunction 单个功能通知
func LocoFunction(th byte, l types.Locomotive, fn int) string {
	return Function(th, l.Address(), fn, l.FunctionOn(fn))
}

// LocoState 新占用机车后的完整状态：标签、全部功能、方向、速度
func LocoState(th byte, l types.Locomotive) []string {
	out := make([]string, 0, types.MaxFunctions+4)
	out = append(out, LocoAdded(th, l.Address()))
	if len(l.FunctionLabels) > 0 {
		out = append(out, LocoLabels(th, l))
	}
	for fn := 0; fn < types.MaxFunctions; fn++ {
		out = append(out, LocoFunction(th, l, fn))
	}
	if d := LocoDirection(th, l); d != "" {
		out = append(out, d)
	}
	out = append(out, LocoSpeed(th, l))
	return out
}

// StealNeeded 请求的机车已被占用，需要确认抢占
func StealNeeded(th byte, addr string) string {
	return throttleFrame(th, OpSteal, addr, addr)
}

// SortedRoster 按名称排序后的名册副本
func SortedRoster(locos []types.Locomotive) []types.Locomotive {
	out := make([]types.Locomotive, len(locos))
	copy(out, locos)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
