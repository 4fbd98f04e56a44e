package connmgr

import (
	"time"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// Config 连接管理器配置
type Config struct {
	// PreferredProtocol 首选协议，决定识别阶段是否发送探测帧
	PreferredProtocol types.Protocol

	// DetectWindow 协议识别窗口
	DetectWindow time.Duration

	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// InitialBackoff 首次失败后的重连延迟
	InitialBackoff time.Duration

	// MaxBackoff 最大重连延迟
	MaxBackoff time.Duration

	// BackoffMultiplier 退避乘数
	BackoffMultiplier float64

	// StableAfter 会话持续超过该时长后退避复位
	StableAfter time.Duration

	// WriteRate 上游写入速率（帧/秒），WriteBurst 突发量
	WriteRate  float64
	WriteBurst int

	// LockTimeout 链路写锁超时
	LockTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PreferredProtocol: types.ProtocolWiThrottle,
		DetectWindow:      config.DefaultDetectWindow,
		DialTimeout:       config.DefaultDialTimeout,
		InitialBackoff:    config.DefaultBackoffInitial,
		MaxBackoff:        config.DefaultBackoffMax,
		BackoffMultiplier: config.DefaultBackoffMultiplier,
		StableAfter:       config.DefaultStableAfter,
		WriteRate:         config.DefaultWriteRate,
		WriteBurst:        config.DefaultWriteBurst,
		LockTimeout:       config.DefaultLockTimeout,
	}
}

// Validate 修正无效值
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.DetectWindow <= 0 {
		c.DetectWindow = def.DetectWindow
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = def.MaxBackoff
		if c.MaxBackoff < c.InitialBackoff {
			c.MaxBackoff = c.InitialBackoff
		}
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.StableAfter <= 0 {
		c.StableAfter = def.StableAfter
	}
	if c.WriteRate <= 0 {
		c.WriteRate = def.WriteRate
	}
	if c.WriteBurst <= 0 {
		c.WriteBurst = def.WriteBurst
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = def.LockTimeout
	}
}

// ConfigFromUnified 从统一配置创建连接管理配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	up := cfg.Upstream
	c := Config{
		PreferredProtocol: up.PreferredProtocol,
		DetectWindow:      up.DetectWindow,
		DialTimeout:       up.DialTimeout,
		InitialBackoff:    up.Backoff.Initial,
		MaxBackoff:        up.Backoff.Max,
		BackoffMultiplier: up.Backoff.Multiplier,
		StableAfter:       up.Backoff.StableAfter,
		WriteRate:         up.WriteRate,
		WriteBurst:        up.WriteBurst,
		LockTimeout:       cfg.Throttle.LockTimeout,
	}
	if up.Transport == config.TransportSerial {
		// 串口上只有 DCC-Ex
		c.PreferredProtocol = types.ProtocolDCCEx
	}
	c.Validate()
	return c
}
