// Package config 提供 minithrottle 的配置结构
//
// 每个组件对应一个子配置，均有 Default*Config 构造函数。
// 持久化的配置项由 Load 从 ConfigStore 读取，命令行参数在其后覆盖。
package config

import (
	"errors"
	"time"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ErrStartupConflict 启动配置互相冲突，无法运行
var ErrStartupConflict = errors.New("config: startup conflict")

// Config 完整配置
type Config struct {
	// Name 设备名
	Name string

	Upstream  UpstreamConfig
	Relay     RelayConfig
	Diag      DiagConfig
	Keepalive KeepaliveConfig
	FastClock FastClockConfig
	Route     RouteConfig
	Throttle  ThrottleConfig
	Storage   StorageConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// ============================================================================
//                              上游连接
// ============================================================================

// Transport 上游链路类型
type Transport string

const (
	// TransportTCP TCP 链路
	TransportTCP Transport = "tcp"
	// TransportSerial 串口链路（只支持 DCC-Ex）
	TransportSerial Transport = "serial"
)

// BackoffConfig 重连退避配置
type BackoffConfig struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	StableAfter time.Duration
}

// UpstreamConfig 上游连接配置
type UpstreamConfig struct {
	// Transport 链路类型
	Transport Transport

	// Address 指令站地址 host:port，为空时使用 mDNS 发现
	Address string

	// MDNS 是否启用 mDNS 发现
	MDNS bool

	// MDNSTimeout 单次 mDNS 查询超时
	MDNSTimeout time.Duration

	// SerialDevice 串口设备
	SerialDevice string

	// BaudRate 串口波特率
	BaudRate int

	// PreferredProtocol 首选协议（决定是否发送探测帧及 mDNS 服务名）
	PreferredProtocol types.Protocol

	// DetectWindow 协议识别窗口
	DetectWindow time.Duration

	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// Backoff 重连退避
	Backoff BackoffConfig

	// WriteRate 写入速率（帧/秒），WriteBurst 突发
	WriteRate  float64
	WriteBurst int

	// TrackPower DCC-Ex 上电区段
	TrackPower types.TrackPower

	// ShowPackets 把收发帧写入诊断队列
	ShowPackets bool
}

// DefaultUpstreamConfig 返回默认上游配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Transport:         TransportTCP,
		MDNS:              true,
		MDNSTimeout:       DefaultMDNSTimeout,
		BaudRate:          DefaultBaudRate,
		PreferredProtocol: types.ProtocolWiThrottle,
		DetectWindow:      DefaultDetectWindow,
		DialTimeout:       DefaultDialTimeout,
		Backoff: BackoffConfig{
			Initial:     DefaultBackoffInitial,
			Max:         DefaultBackoffMax,
			Multiplier:  DefaultBackoffMultiplier,
			StableAfter: DefaultStableAfter,
		},
		WriteRate:  DefaultWriteRate,
		WriteBurst: DefaultWriteBurst,
		TrackPower: types.TrackBoth,
	}
}

// ============================================================================
//                              中继
// ============================================================================

// RelayConfig 中继服务配置
type RelayConfig struct {
	// Mode 中继模式，NoRelay 表示不启动
	Mode types.RelayMode

	// Port 监听端口，0 表示按模式取默认端口
	Port int

	// MaxClients 最大客户端数
	MaxClients int

	// KeepAlive 保活秒数，客户端静默超过 2*KeepAlive+1 秒即被断开
	KeepAlive int

	// OutQueue 每客户端出站队列长度
	OutQueue int

	// InRate / InBurst 每客户端入站限速
	InRate  float64
	InBurst int

	// WriteTimeout 单帧写超时
	WriteTimeout time.Duration
}

// DefaultRelayConfig 返回默认中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Mode:         types.RelayWiThrottle,
		MaxClients:   DefaultMaxRelay,
		KeepAlive:    DefaultRelayKeepAlive,
		OutQueue:     DefaultRelayOutQueue,
		InRate:       DefaultRelayInRate,
		InBurst:      DefaultRelayInBurst,
		WriteTimeout: DefaultRelayWriteTimeout,
	}
}

// Enabled 是否启用中继
func (c RelayConfig) Enabled() bool {
	return c.Mode != types.NoRelay
}

// ListenPort 返回实际监听端口
func (c RelayConfig) ListenPort() int {
	if c.Port > 0 {
		return c.Port
	}
	if c.Mode == types.RelayDCCEx {
		return DefaultDCCExPort
	}
	return DefaultWiThrottlePort
}

// Timeout 客户端静默超时
func (c RelayConfig) Timeout() time.Duration {
	return time.Duration(c.KeepAlive*2+1) * time.Second
}

// ============================================================================
//                              诊断
// ============================================================================

// DiagConfig 诊断监听配置
type DiagConfig struct {
	// Enabled 是否启用
	Enabled bool

	// Port 监听端口
	Port int

	// MaxSessions 最大并发会话
	MaxSessions int

	// QueueSize 诊断行队列长度
	QueueSize int
}

// DefaultDiagConfig 返回默认诊断配置
func DefaultDiagConfig() DiagConfig {
	return DiagConfig{
		Enabled:     true,
		Port:        DefaultDiagPort,
		MaxSessions: MaxDiagSessions,
		QueueSize:   256,
	}
}

// ============================================================================
//                              保活
// ============================================================================

// KeepaliveConfig 上游保活配置
type KeepaliveConfig struct {
	// Interval 心跳间隔，WiThrottle 服务端下发 *N 后以其为准
	Interval time.Duration

	// Margin 判定断线的余量
	Margin time.Duration

	// CheckInterval 检查周期
	CheckInterval time.Duration

	// ShowKeepAlive 把心跳写入诊断队列
	ShowKeepAlive bool
}

// DefaultKeepaliveConfig 返回默认保活配置
func DefaultKeepaliveConfig() KeepaliveConfig {
	return KeepaliveConfig{
		Interval:      DefaultKeepAliveInterval,
		Margin:        DefaultKeepAliveMargin,
		CheckInterval: DefaultKeepAliveCheck,
	}
}

// DeadAfter 无任何收发超过该时长即判定会话失效
func (c KeepaliveConfig) DeadAfter(interval time.Duration) time.Duration {
	return 2*interval + c.Margin
}

// ============================================================================
//                              快钟
// ============================================================================

// FastClockConfig 快钟配置
type FastClockConfig struct {
	// Hour / Minute 权威模式下的起始时间
	Hour   int
	Minute int

	// Rate 倍率，大于 0 且中继启用时本机为权威时钟
	Rate float64

	// BroadcastInterval 权威模式广播周期（真实时间）
	BroadcastInterval time.Duration

	// SendToStation 同时把时间写给 DCC-Ex 指令站
	SendToStation bool
}

// DefaultFastClockConfig 返回默认快钟配置
func DefaultFastClockConfig() FastClockConfig {
	return FastClockConfig{
		Hour:              6,
		BroadcastInterval: DefaultFastClockBroadcast,
	}
}

// ============================================================================
//                              进路
// ============================================================================

// RouteConfig 本地进路执行配置
type RouteConfig struct {
	// StepDelay 步骤间隔
	StepDelay time.Duration

	// AbortOnError 某步失败时放弃剩余步骤
	AbortOnError bool
}

// DefaultRouteConfig 返回默认进路配置
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		StepDelay: RouteDelays[DefaultRouteDelayIndex],
	}
}

// ============================================================================
//                              手柄与共享表
// ============================================================================

// ThrottleConfig 本地手柄与共享表配置
type ThrottleConfig struct {
	// Count 本地手柄数量
	Count int

	// MaxConsist 每手柄最多机车数
	MaxConsist int

	// LatchDefault / LeadDefault 新机车的功能位图默认值
	LatchDefault uint32
	LeadDefault  uint32

	// LockTimeout 共享表锁等待上限
	LockTimeout time.Duration
}

// DefaultThrottleConfig 返回默认手柄配置
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Count:        DefaultThrottles,
		MaxConsist:   MaxConsistSize,
		LatchDefault: types.DefaultLatchMask,
		LeadDefault:  types.DefaultLeadOnlyMask,
		LockTimeout:  DefaultLockTimeout,
	}
}

// ============================================================================
//                              存储、指标、日志
// ============================================================================

// StorageConfig 配置存储
type StorageConfig struct {
	// Dir badger 数据目录，为空时使用内存模式
	Dir string
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// MetricsConfig 指标导出
type MetricsConfig struct {
	// Addr /metrics 监听地址，为空时不导出
	Addr string

	// IntrospectAddr JSON 自省与 pprof 监听地址，为空时不启动
	IntrospectAddr string
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{}
}

// LogConfig 日志配置
type LogConfig struct {
	// DebugLevel 0..3
	DebugLevel int
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{DebugLevel: 2}
}

// ============================================================================
//                              构造
// ============================================================================

// NewConfig 返回全部默认值的配置
func NewConfig() *Config {
	return &Config{
		Name:      DefaultName,
		Upstream:  DefaultUpstreamConfig(),
		Relay:     DefaultRelayConfig(),
		Diag:      DefaultDiagConfig(),
		Keepalive: DefaultKeepaliveConfig(),
		FastClock: DefaultFastClockConfig(),
		Route:     DefaultRouteConfig(),
		Throttle:  DefaultThrottleConfig(),
		Storage:   DefaultStorageConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
	}
}

// FastClockAuthoritative 本机是否为权威快钟
func (c *Config) FastClockAuthoritative() bool {
	return c.Relay.Enabled() && c.FastClock.Rate > 0
}
