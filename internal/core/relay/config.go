package relay

import (
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// Config 中继服务配置
type Config struct {
	// Protocol 客户端协议，Undefined 表示不启动
	Protocol types.Protocol

	// ListenAddr 监听地址
	ListenAddr string

	// Timeout 客户端静默超时
	Timeout time.Duration

	// CheckInterval 超时检查周期
	CheckInterval time.Duration

	// OutQueue 每客户端出站队列长度
	OutQueue int

	// InRate / InBurst 每客户端入站限速（帧/秒）
	InRate  float64
	InBurst int

	// WriteTimeout 单帧写超时
	WriteTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	rc := config.DefaultRelayConfig()
	return Config{
		Protocol:      rc.Mode.Protocol(),
		ListenAddr:    fmt.Sprintf(":%d", rc.ListenPort()),
		Timeout:       rc.Timeout(),
		CheckInterval: time.Second,
		OutQueue:      rc.OutQueue,
		InRate:        rc.InRate,
		InBurst:       rc.InBurst,
		WriteTimeout:  rc.WriteTimeout,
	}
}

// Validate 修正无效值
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.OutQueue <= 0 {
		c.OutQueue = def.OutQueue
	}
	if c.InRate <= 0 {
		c.InRate = def.InRate
	}
	if c.InBurst <= 0 {
		c.InBurst = def.InBurst
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
}

// Enabled 是否启动中继
func (c Config) Enabled() bool {
	return c.Protocol != types.ProtocolUndefined
}

// ConfigFromUnified 从统一配置创建中继配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	rc := cfg.Relay
	c := Config{
		Protocol:      rc.Mode.Protocol(),
		ListenAddr:    fmt.Sprintf(":%d", rc.ListenPort()),
		Timeout:       rc.Timeout(),
		CheckInterval: time.Second,
		OutQueue:      rc.OutQueue,
		InRate:        rc.InRate,
		InBurst:       rc.InBurst,
		WriteTimeout:  rc.WriteTimeout,
	}
	c.Validate()
	return c
}
