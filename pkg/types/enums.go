package types

import "strings"

// ============================================================================
//                              Protocol - 控制协议
// ============================================================================

// Protocol 控制协议
type Protocol int

const (
	// ProtocolUndefined 尚未识别
	ProtocolUndefined Protocol = iota
	// ProtocolWiThrottle 行式 WiThrottle 协议
	ProtocolWiThrottle
	// ProtocolDCCEx 尖括号 DCC-Ex 协议
	ProtocolDCCEx
)

// String 返回协议的字符串表示
func (p Protocol) String() string {
	switch p {
	case ProtocolWiThrottle:
		return "WiThrottle"
	case ProtocolDCCEx:
		return "DCC-Ex"
	default:
		return "Undefined"
	}
}

// ParseProtocol 从配置字符串解析协议（大小写不敏感）
func ParseProtocol(s string) Protocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "withrottle", "wit", "1":
		return ProtocolWiThrottle
	case "dccex", "dcc-ex", "2":
		return ProtocolDCCEx
	default:
		return ProtocolUndefined
	}
}

// ============================================================================
//                              RelayMode - 中继模式
// ============================================================================

// RelayMode 中继模式
type RelayMode int

const (
	// NoRelay 不启动中继服务
	NoRelay RelayMode = iota
	// RelayWiThrottle 以 WiThrottle 服务端身份中继
	RelayWiThrottle
	// RelayDCCEx 以 DCC-Ex 指令站身份中继
	RelayDCCEx
)

// String 返回中继模式的字符串表示
func (m RelayMode) String() string {
	switch m {
	case RelayWiThrottle:
		return "withrottle"
	case RelayDCCEx:
		return "dccex"
	default:
		return "none"
	}
}

// Protocol 返回中继客户端使用的协议
func (m RelayMode) Protocol() Protocol {
	switch m {
	case RelayWiThrottle:
		return ProtocolWiThrottle
	case RelayDCCEx:
		return ProtocolDCCEx
	default:
		return ProtocolUndefined
	}
}

// ============================================================================
//                              Direction - 行驶方向
// ============================================================================

// Direction 机车行驶方向
type Direction int8

const (
	// DirForward 前进
	DirForward Direction = iota
	// DirStop 停止
	DirStop
	// DirReverse 后退
	DirReverse
	// DirUnchanged 保持不变（仅用于请求）
	DirUnchanged
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirForward:
		return "forward"
	case DirStop:
		return "stop"
	case DirReverse:
		return "reverse"
	case DirUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              TurnoutState - 道岔状态
// ============================================================================

// TurnoutState 道岔状态
//
// 数值与 WiThrottle 线路编码一致。
type TurnoutState uint8

const (
	// TurnoutUnknown 未知
	TurnoutUnknown TurnoutState = 1
	// TurnoutClosed 直向
	TurnoutClosed TurnoutState = 2
	// TurnoutThrown 侧向
	TurnoutThrown TurnoutState = 4
	// TurnoutInconsistent 不一致
	TurnoutInconsistent TurnoutState = 8
)

// String 返回道岔状态的字符串表示
func (s TurnoutState) String() string {
	switch s {
	case TurnoutClosed:
		return "closed"
	case TurnoutThrown:
		return "thrown"
	case TurnoutInconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

// Valid 检查是否为已定义状态
func (s TurnoutState) Valid() bool {
	switch s {
	case TurnoutUnknown, TurnoutClosed, TurnoutThrown, TurnoutInconsistent:
		return true
	}
	return false
}

// ============================================================================
//                              RouteState - 进路状态
// ============================================================================

// RouteState 进路状态
type RouteState uint8

const (
	// RouteIdle 空闲
	RouteIdle RouteState = iota
	// RouteArmed 已排队等待执行
	RouteArmed
	// RouteInProgress 执行中
	RouteInProgress
	// RouteConfirmed 所有步骤已确认
	RouteConfirmed
	// RouteFailed 执行失败
	RouteFailed
)

// String 返回进路状态的字符串表示
func (s RouteState) String() string {
	switch s {
	case RouteIdle:
		return "idle"
	case RouteArmed:
		return "armed"
	case RouteInProgress:
		return "in-progress"
	case RouteConfirmed:
		return "confirmed"
	case RouteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              PowerState - 轨道电源
// ============================================================================

// PowerState 轨道电源状态
type PowerState int

const (
	// PowerUnknown 未知
	PowerUnknown PowerState = iota
	// PowerOff 断电
	PowerOff
	// PowerOn 通电
	PowerOn
)

// String 返回电源状态的字符串表示
func (p PowerState) String() string {
	switch p {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              TrackPower - DCC-Ex 供电区段
// ============================================================================

// TrackPower DCC-Ex 上电时选择的轨道
type TrackPower int

const (
	// TrackBoth 主轨与编程轨同时上电
	TrackBoth TrackPower = iota
	// TrackMainOnly 仅主轨
	TrackMainOnly
	// TrackProgOnly 仅编程轨
	TrackProgOnly
	// TrackJoin 编程轨并入主轨
	TrackJoin
)

// String 返回供电区段的字符串表示
func (t TrackPower) String() string {
	switch t {
	case TrackMainOnly:
		return "MAINONLY"
	case TrackProgOnly:
		return "PROGONLY"
	case TrackJoin:
		return "JOIN"
	default:
		return "BOTH"
	}
}

// ParseTrackPower 解析供电区段配置
func ParseTrackPower(s string) TrackPower {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MAINONLY", "MAIN":
		return TrackMainOnly
	case "PROGONLY", "PROG":
		return TrackProgOnly
	case "JOIN":
		return TrackJoin
	default:
		return TrackBoth
	}
}

// ============================================================================
//                              ConnState - 上游连接状态
// ============================================================================

// ConnState 上游连接状态机
type ConnState int

const (
	// ConnDisconnected 未连接
	ConnDisconnected ConnState = iota
	// ConnConnecting 连接中
	ConnConnecting
	// ConnDetecting 链路已建立，正在识别协议
	ConnDetecting
	// ConnConnected 已连接且协议已确定
	ConnConnected
)

// String 返回连接状态的字符串表示
func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnDetecting:
		return "detecting"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}
