package dccex

import (
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

func frame(parts ...string) string {
	return "<" + strings.Join(parts, " ") + ">"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}

func itoa(v int) string { return strconv.Itoa(v) }

// ============================================================================
//                              客户端角色（发往指令站）
// ============================================================================

// Status 查询状态
func Status() string { return "<s>" }

// PowerOn 上电
func PowerOn(track types.TrackPower) string {
	switch track {
	case types.TrackMainOnly:
		return "<1 MAIN>"
	case types.TrackProgOnly:
		return "<1 PROG>"
	case types.TrackJoin:
		return "<1 JOIN>"
	default:
		return "<1>"
	}
}

// PowerOff 断电
func PowerOff() string { return "<0>" }

// Throttle 速度与方向，speed 为 -1 时紧急停车
func Throttle(cab uint16, speed int, dir types.Direction) string {
	return frame("t", itoa(int(cab)), itoa(speed), itoa(DirectionFlag(dir)))
}

// Function 功能开关
func Function(cab uint16, fn int, on bool) string {
	v := "0"
	if on {
		v = "1"
	}
	return frame("F", itoa(int(cab)), itoa(fn), v)
}

// Turnout 道岔动作
func Turnout(id int, thrown bool) string {
	v := "0"
	if thrown {
		v = "1"
	}
	return frame("T", itoa(id), v)
}

// ListTurnouts 查询道岔列表
func ListTurnouts() string { return "<J T>" }

// QueryTurnout 查询单个道岔
func QueryTurnout(id int) string { return frame("J", "T", itoa(id)) }

// ListRoutes 查询进路列表
func ListRoutes() string { return "<J A>" }

// QueryRoute 查询单个进路
func QueryRoute(id int) string { return frame("J", "A", itoa(id)) }

// ListRoster 查询机车名册
func ListRoster() string { return "<J R>" }

// QueryRoster 查询单个机车
func QueryRoster(id int) string { return frame("J", "R", itoa(id)) }

// QueryClock 查询快钟
func QueryClock() string { return "<J C>" }

// SetClock 设置快钟
func SetClock(t types.FastClockTime) string {
	return frame("JC", itoa(t.Minutes()), itoa(int(t.Rate)))
}

// StartRoute 启动进路
func StartRoute(id int) string { return frame("/", "START", itoa(id)) }

// ReadCV 读编程轨 CV
func ReadCV(cv int) string {
	return frame("R", itoa(cv), itoa(CallbackNum), itoa(CallbackSub))
}

// WriteCV 写编程轨 CV
func WriteCV(cv, value int) string {
	return frame("W", itoa(cv), itoa(value), itoa(CallbackNum), itoa(CallbackSub))
}

// ReadAddress 读编程轨机车地址
func ReadAddress() string { return "<R>" }

// EStopAll 全部机车紧急停车
func EStopAll() string { return "<!>" }

// Keepalive 心跳（查询槽位数，无副作用）
func Keepalive() string { return "<#>" }

// Forget 释放机车槽位
func Forget(cab uint16) string { return frame("-", itoa(int(cab))) }

// ============================================================================
//                              指令站角色（发往中继客户端）
// ============================================================================

// Banner 版本信息
func Banner(text string) string { return "<i" + text + ">" }

// PowerState 电源状态
func PowerState(p types.PowerState) string {
	if p == types.PowerOn {
		return "<p1>"
	}
	return "<p0>"
}

// LocoState 机车状态广播 <l cab reg speedByte functMap>
func LocoState(l types.Locomotive) string {
	speed := int(l.Speed)
	if speed < 0 {
		speed = 0
	}
	return frame("l", itoa(int(l.ID)), "0",
		itoa(EncodeSpeedByte(speed, l.Direction)),
		strconv.FormatUint(uint64(l.Functions), 10))
}

// TurnoutState 道岔状态广播 <H id 0|1>
func TurnoutState(id int, st types.TurnoutState) string {
	v := "0"
	if st == types.TurnoutThrown {
		v = "1"
	}
	return frame("H", itoa(id), v)
}

// TurnoutStateChar <jT> 中的状态字符
func TurnoutStateChar(st types.TurnoutState) string {
	switch st {
	case types.TurnoutClosed:
		return "C"
	case types.TurnoutThrown:
		return "T"
	default:
		return "X"
	}
}

// TurnoutStateFromChar 解析 <jT> 中的状态字符
func TurnoutStateFromChar(s string) types.TurnoutState {
	switch s {
	case "C", "0":
		return types.TurnoutClosed
	case "T", "1":
		return types.TurnoutThrown
	default:
		return types.TurnoutUnknown
	}
}

// IDList 列表应答 <jT 1 2 3>
func IDList(op string, ids []int) string {
	parts := make([]string, 0, len(ids)+1)
	parts = append(parts, op)
	for _, id := range ids {
		parts = append(parts, itoa(id))
	}
	return frame(parts...)
}

// TurnoutDetail 单个道岔应答 <jT id C "desc">
func TurnoutDetail(id int, t types.Turnout) string {
	return frame("jT", itoa(id), TurnoutStateChar(t.State), quote(t.UserName))
}

// RouteDetail 单个进路应答 <jA id R "desc">
func RouteDetail(id int, r types.Route) string {
	return frame("jA", itoa(id), "R", quote(r.UserName))
}

// RosterDetail 单个机车应答 <jR id "desc" "labels">
func RosterDetail(l types.Locomotive) string {
	labels := make([]string, len(l.FunctionLabels))
	for i, s := range l.FunctionLabels {
		if !l.Latches(i) {
			s = "*" + s
		}
		labels[i] = s
	}
	return frame("jR", itoa(int(l.ID)), quote(l.Name), quote(strings.Join(labels, "/")))
}

// Clock 快钟广播 <jC minutes rate>
func Clock(t types.FastClockTime) string {
	return frame("jC", itoa(t.Minutes()), itoa(int(t.Rate)))
}

// CVReply CV 读写应答
func CVReply(r types.CVResult) string {
	if r.CV == 0 {
		return frame("r", itoa(r.Value))
	}
	return frame("r", itoa(CallbackNum)+"|"+itoa(CallbackSub)+"|"+itoa(r.CV), itoa(r.Value))
}

// Fail 失败应答
func Fail() string { return "<X>" }

// OK 成功应答
func OK() string { return "<O>" }

// Slots 心跳应答 <# n>
func Slots(n int) string { return frame("#", itoa(n)) }

// Message 显示消息 <@ 0 row "text">
func Message(row int, text string) string {
	return frame("@", "0", itoa(row), quote(text))
}

// Unknown 查询对象不存在 <jT id X>
func Unknown(op string, id int) string {
	return frame(op, itoa(id), "X")
}
