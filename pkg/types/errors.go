// Package types 定义 MiniThrottle 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              锁与共享状态
// ============================================================================

var (
	// ErrLockTimeout 在限定时间内未能取得锁
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// ============================================================================
//                              机车相关错误
// ============================================================================

var (
	// ErrUnknownLoco 机车不在表中
	ErrUnknownLoco = errors.New("unknown locomotive")

	// ErrInvalidAddress 机车地址无效
	ErrInvalidAddress = errors.New("invalid locomotive address")

	// ErrStealPending 机车被其他手柄占用，需要确认抢占
	ErrStealPending = errors.New("locomotive owned by another throttle, steal required")

	// ErrNotOwned 机车不属于该手柄
	ErrNotOwned = errors.New("locomotive not owned by throttle")

	// ErrConsistFull 手柄编组已满
	ErrConsistFull = errors.New("consist is full")

	// ErrInvalidFunction 功能编号越界
	ErrInvalidFunction = errors.New("function number out of range")

	// ErrInvalidThrottle 手柄编号越界
	ErrInvalidThrottle = errors.New("throttle index out of range")
)

// ============================================================================
//                              道岔与进路错误
// ============================================================================

var (
	// ErrUnknownTurnout 道岔未定义
	ErrUnknownTurnout = errors.New("unknown turnout")

	// ErrUnknownRoute 进路未定义
	ErrUnknownRoute = errors.New("unknown route")

	// ErrTooManySteps 进路步骤过多
	ErrTooManySteps = errors.New("route has too many steps")

	// ErrRouteBusy 进路正在执行
	ErrRouteBusy = errors.New("route already in progress")

	// ErrInvalidTurnoutState 道岔状态非法
	ErrInvalidTurnoutState = errors.New("invalid turnout state")
)

// ============================================================================
//                              连接与中继错误
// ============================================================================

var (
	// ErrNotConnected 未连接到指令站
	ErrNotConnected = errors.New("not connected to command station")

	// ErrPoolFull 中继槽位已满
	ErrPoolFull = errors.New("relay pool is full")

	// ErrUnknownSlot 中继槽位未占用
	ErrUnknownSlot = errors.New("relay slot not in use")

	// ErrMalformedFrame 帧格式错误
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownFrame 无法识别的帧
	ErrUnknownFrame = errors.New("unrecognized frame")

	// ErrUnsupported 当前协议不支持该操作
	ErrUnsupported = errors.New("operation not supported by protocol")
)
