package diag

import (
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/internal/config"
)

// TooManySessionsText 会话数已满时告知新连接的文本
const TooManySessionsText = "Too many diagnostic sessions"

// Config 诊断服务配置
type Config struct {
	// Enabled 是否启用
	Enabled bool

	// ListenAddr 监听地址
	ListenAddr string

	// MaxSessions 最大并发会话
	MaxSessions int

	// SessionQueue 每个会话待写诊断行的缓冲
	SessionQueue int

	// WriteTimeout 单行写超时
	WriteTimeout time.Duration

	// PollTimeout 诊断队列单次等待上限
	PollTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		ListenAddr:   fmt.Sprintf(":%d", config.DefaultDiagPort),
		MaxSessions:  config.MaxDiagSessions,
		SessionQueue: 256,
		WriteTimeout: 5 * time.Second,
		PollTimeout:  time.Second,
	}
}

// Validate 修正无效值
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.MaxSessions <= 0 || c.MaxSessions > config.MaxDiagSessions {
		c.MaxSessions = def.MaxSessions
	}
	if c.SessionQueue <= 0 {
		c.SessionQueue = def.SessionQueue
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
}

// ConfigFromUnified 从统一配置生成诊断服务配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.Enabled = cfg.Diag.Enabled
	c.ListenAddr = fmt.Sprintf(":%d", cfg.Diag.Port)
	c.MaxSessions = cfg.Diag.MaxSessions
	c.SessionQueue = cfg.Diag.QueueSize
	c.Validate()
	return c
}
