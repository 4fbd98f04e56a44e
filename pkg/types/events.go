package types

// ============================================================================
//                              Change - 更新通知
// ============================================================================

// ChangeKind 变更类别
type ChangeKind int

const (
	// ChangeLoco 机车速度或方向
	ChangeLoco ChangeKind = iota
	// ChangeFunction 机车功能
	ChangeFunction
	// ChangeTurnout 道岔状态
	ChangeTurnout
	// ChangeRoute 进路状态
	ChangeRoute
	// ChangePower 轨道电源
	ChangePower
	// ChangeFastClock 快钟
	ChangeFastClock
	// ChangeRoster 机车名册整体刷新
	ChangeRoster
	// ChangeTurnoutList 道岔列表整体刷新
	ChangeTurnoutList
	// ChangeRouteList 进路列表整体刷新
	ChangeRouteList
	// ChangeLinkDown 上游连接丢失
	ChangeLinkDown
	// ChangeLinkUp 上游连接建立
	ChangeLinkUp
)

// String 返回变更类别的字符串表示
func (k ChangeKind) String() string {
	switch k {
	case ChangeLoco:
		return "loco"
	case ChangeFunction:
		return "function"
	case ChangeTurnout:
		return "turnout"
	case ChangeRoute:
		return "route"
	case ChangePower:
		return "power"
	case ChangeFastClock:
		return "fastclock"
	case ChangeRoster:
		return "roster"
	case ChangeTurnoutList:
		return "turnout-list"
	case ChangeRouteList:
		return "route-list"
	case ChangeLinkDown:
		return "link-down"
	case ChangeLinkUp:
		return "link-up"
	default:
		return "unknown"
	}
}

// FastClockTime 快钟时间
type FastClockTime struct {
	// Seconds 自午夜起的秒数
	Seconds uint32
	// Rate 快钟倍率，0 表示停止
	Rate float64
}

// Hour 返回小时
func (t FastClockTime) Hour() int { return int(t.Seconds/3600) % 24 }

// Minute 返回分钟
func (t FastClockTime) Minute() int { return int(t.Seconds/60) % 60 }

// Minutes 返回自午夜起的分钟数
func (t FastClockTime) Minutes() int { return int(t.Seconds / 60) }

// Change 共享状态变更通知
//
// 只在表中状态实际改变时产生。各字段按 Kind 取用。
type Change struct {
	Kind     ChangeKind
	Source   Source
	Loco     Locomotive
	Function int
	Turnout  Turnout
	Route    Route
	Power    PowerState
	Clock    FastClockTime

	// Locos/Turnouts/Routes 列表刷新时的快照
	Locos    []Locomotive
	Turnouts []Turnout
	Routes   []Route

	// Message 附带文本（如断线通知）
	Message string
}

// ============================================================================
//                              InputEvent - 本地输入
// ============================================================================

// InputKind 本地输入类别
type InputKind int

const (
	// InputSpeed 设置速度（Value 为速度级）
	InputSpeed InputKind = iota
	// InputDirection 设置方向（Value 为 Direction）
	InputDirection
	// InputFunction 功能键按下（Value 为功能号）
	InputFunction
	// InputEStop 紧急停车
	InputEStop
	// InputPowerToggle 切换轨道电源
	InputPowerToggle
	// InputAcquire 占用机车（Value 为地址）
	InputAcquire
	// InputRelease 释放机车（Value 为地址）
	InputRelease
)

// String 返回输入类别的字符串表示
func (k InputKind) String() string {
	switch k {
	case InputSpeed:
		return "speed"
	case InputDirection:
		return "direction"
	case InputFunction:
		return "function"
	case InputEStop:
		return "estop"
	case InputPowerToggle:
		return "power"
	case InputAcquire:
		return "acquire"
	case InputRelease:
		return "release"
	default:
		return "unknown"
	}
}

// InputEvent 本地输入事件（编码器、键盘等）
type InputEvent struct {
	Kind     InputKind
	Throttle int
	Value    int
}

// ============================================================================
//                              CVResult - CV 读写结果
// ============================================================================

// CVResult 编程轨 CV 读写结果
type CVResult struct {
	// CV 编号，0 表示地址读取
	CV int
	// Value 值，-1 表示失败
	Value int
}

// OK 是否成功
func (r CVResult) OK() bool { return r.Value >= 0 }
