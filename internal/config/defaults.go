package config

import "time"

// ============================================================================
//                              预设默认值
// ============================================================================

// 设备默认值
const (
	// DefaultName 默认设备名
	DefaultName = "miniThrottle"

	// DefaultLockTimeout 共享表锁的默认等待上限
	DefaultLockTimeout = 2000 * time.Millisecond

	// DefaultThrottles 默认本地手柄数量
	DefaultThrottles = 4

	// MaxConsistSize 单个手柄最多同时控制的机车数
	MaxConsistSize = 8
)

// 上游连接默认值
const (
	// DefaultWiThrottlePort WiThrottle 默认端口
	DefaultWiThrottlePort = 12090

	// DefaultDCCExPort DCC-Ex 默认端口
	DefaultDCCExPort = 2560

	// DefaultBaudRate 串口默认波特率
	DefaultBaudRate = 115200

	// DefaultDetectWindow 协议识别窗口
	DefaultDetectWindow = 5 * time.Second

	// DefaultDialTimeout 默认拨号超时
	DefaultDialTimeout = 10 * time.Second

	// DefaultMDNSTimeout mDNS 查询超时
	DefaultMDNSTimeout = 3 * time.Second

	// DefaultBackoffInitial 重连初始退避
	DefaultBackoffInitial = time.Second

	// DefaultBackoffMax 重连最大退避
	DefaultBackoffMax = 60 * time.Second

	// DefaultBackoffMultiplier 退避倍数
	DefaultBackoffMultiplier = 2.0

	// DefaultStableAfter 连接持续该时长后重置退避
	DefaultStableAfter = 30 * time.Second

	// DefaultWriteRate 上游写入速率（帧/秒）
	DefaultWriteRate = 100

	// DefaultWriteBurst 上游写入突发
	DefaultWriteBurst = 40
)

// 中继默认值
const (
	// AbsoluteMaxRelay 中继客户端数量的绝对上限
	AbsoluteMaxRelay = 16

	// DefaultMaxRelay 默认中继客户端数量
	DefaultMaxRelay = AbsoluteMaxRelay / 2

	// DefaultRelayKeepAlive 中继保活秒数
	DefaultRelayKeepAlive = 10

	// DefaultRelayOutQueue 每客户端出站队列长度
	DefaultRelayOutQueue = 64

	// DefaultRelayInRate 每客户端入站速率（帧/秒）
	DefaultRelayInRate = 50

	// DefaultRelayInBurst 每客户端入站突发
	DefaultRelayInBurst = 100

	// DefaultRelayWriteTimeout 单帧写超时
	DefaultRelayWriteTimeout = 5 * time.Second
)

// 诊断默认值
const (
	// DefaultDiagPort 诊断端口
	DefaultDiagPort = 23

	// MaxDiagSessions 最大诊断会话数
	MaxDiagSessions = 2
)

// 保活与快钟默认值
const (
	// DefaultKeepAliveInterval 上游心跳间隔
	DefaultKeepAliveInterval = 10 * time.Second

	// DefaultKeepAliveMargin 判定断线的余量
	DefaultKeepAliveMargin = time.Second

	// DefaultKeepAliveCheck 检查周期
	DefaultKeepAliveCheck = time.Second

	// DefaultFastClockBroadcast 权威快钟广播周期
	DefaultFastClockBroadcast = 60 * time.Second

	// MaxFastClockRate 快钟倍率上限
	MaxFastClockRate = 1000
)

// RouteDelays 进路步骤间隔选项（routeDelay 为其下标）
var RouteDelays = []time.Duration{
	0,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
	3000 * time.Millisecond,
	4000 * time.Millisecond,
}

// DefaultRouteDelayIndex 默认进路间隔下标
const DefaultRouteDelayIndex = 2
