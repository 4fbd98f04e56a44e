package types

// ============================================================================
//                              道岔
// ============================================================================

// Turnout 道岔
type Turnout struct {
	// SysName 系统名（DCC-Ex 为数字 ID）
	SysName string

	// UserName 显示名
	UserName string

	// State 当前状态
	State TurnoutState
}

// ============================================================================
//                              进路
// ============================================================================

// MaxRouteSteps 单条进路的最大步骤数
const MaxRouteSteps = 25

// RouteStep 进路步骤：把指定道岔设置为目标状态
type RouteStep struct {
	Turnout string
	State   TurnoutState
}

// Route 进路
//
// Steps 为空的进路由上游指令站执行。
type Route struct {
	// SysName 系统名
	SysName string

	// UserName 显示名
	UserName string

	// Steps 有序步骤
	Steps []RouteStep

	// State 当前状态
	State RouteState
}

// Local 是否由本地按步骤执行
func (r Route) Local() bool {
	return len(r.Steps) > 0
}

// Clone 深拷贝
func (r Route) Clone() Route {
	if r.Steps != nil {
		steps := make([]RouteStep, len(r.Steps))
		copy(steps, r.Steps)
		r.Steps = steps
	}
	return r
}
