package connmgr

import (
	"math"
	"time"
)

// ============================================================================
//                              重连退避
// ============================================================================

// calculateBackoff 计算第 attempt 次连续失败后的等待时间
//
// attempt 从 1 开始；<= 0 时返回初始延迟。
func (c Config) calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	// 指数退避
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))

	// 限制最大值
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	return time.Duration(backoff)
}

// nextAttempt 根据本次会话持续时间更新连续失败次数
//
// 会话稳定运行超过 StableAfter 视为成功连接，计数从头开始。
func (c Config) nextAttempt(failures int, connectedFor time.Duration) int {
	if connectedFor >= c.StableAfter {
		return 1
	}
	return failures + 1
}
