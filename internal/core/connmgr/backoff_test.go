package connmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{20, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.calculateBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestNextAttempt(t *testing.T) {
	cfg := DefaultConfig()

	// 立即失败累加
	assert.Equal(t, 1, cfg.nextAttempt(0, 0))
	assert.Equal(t, 4, cfg.nextAttempt(3, time.Second))

	// 稳定连接后复位
	assert.Equal(t, 1, cfg.nextAttempt(5, 30*time.Second))
	assert.Equal(t, 1, cfg.nextAttempt(5, time.Hour))
}

func TestConfigFromUnified(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))

	unified := config.NewConfig()
	unified.Upstream.Backoff.Max = 10 * time.Second
	cfg := ConfigFromUnified(unified)
	assert.Equal(t, 10*time.Second, cfg.MaxBackoff)
	assert.Equal(t, types.ProtocolWiThrottle, cfg.PreferredProtocol)

	// 串口上只有 DCC-Ex
	unified.Upstream.Transport = config.TransportSerial
	cfg = ConfigFromUnified(unified)
	assert.Equal(t, types.ProtocolDCCEx, cfg.PreferredProtocol)
}
