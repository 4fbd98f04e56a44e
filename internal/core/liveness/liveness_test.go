package liveness

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              Mock 实现
// ============================================================================

// mockLink 模拟上游会话
type mockLink struct {
	mu        sync.Mutex
	clock     clock.Clock
	proto     types.Protocol
	connected bool
	lastIn    time.Time
	lastOut   time.Time
	sent      []string
	killed    []string
	sendErr   error
}

func newMockLink(clk clock.Clock, proto types.Protocol) *mockLink {
	now := clk.Now()
	return &mockLink{clock: clk, proto: proto, connected: true, lastIn: now, lastOut: now}
}

func (m *mockLink) Send(_ context.Context, frame string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, frame)
	m.lastOut = m.clock.Now()
	return nil
}

func (m *mockLink) Protocol() types.Protocol { return m.proto }

func (m *mockLink) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockLink) Activity() (time.Time, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastIn, m.lastOut
}

func (m *mockLink) Kill(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killed = append(m.killed, reason)
	m.connected = false
}

func (m *mockLink) receive() {
	m.mu.Lock()
	m.lastIn = m.clock.Now()
	m.mu.Unlock()
}

func (m *mockLink) sentFrames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *mockLink) kills() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.killed...)
}

func testService(link Link, clk clock.Clock, bus *eventbus.Bus) *Service {
	return NewService(Config{
		Interval:      10 * time.Second,
		Margin:        time.Second,
		CheckInterval: time.Second,
	}, link, bus, clk)
}

// ============================================================================
//                              配置
// ============================================================================

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{Interval: -1, Margin: -1}
	cfg.Validate()
	assert.Equal(t, DefaultConfig().Interval, cfg.Interval)
	assert.Equal(t, DefaultConfig().Margin, cfg.Margin)
	assert.Equal(t, DefaultConfig().CheckInterval, cfg.CheckInterval)
	assert.Equal(t, 21*time.Second, cfg.DeadAfter(10*time.Second))
}

func TestConfigFromUnified(t *testing.T) {
	uc := config.NewConfig()
	uc.Keepalive.Interval = 4 * time.Second
	uc.Keepalive.ShowKeepAlive = true

	cfg := ConfigFromUnified(uc)
	assert.Equal(t, 4*time.Second, cfg.Interval)
	assert.True(t, cfg.ShowKeepAlive)
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))
}

// ============================================================================
//                              心跳发送
// ============================================================================

func TestService_SendsKeepaliveWhenIdle(t *testing.T) {
	tests := []struct {
		proto types.Protocol
		frame string
		after time.Duration
	}{
		{types.ProtocolWiThrottle, "*", 5 * time.Second},
		{types.ProtocolDCCEx, "<#>", 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.proto.String(), func(t *testing.T) {
			mock := clock.NewMock()
			link := newMockLink(mock, tt.proto)
			s := testService(link, mock, nil)

			mock.Add(tt.after - time.Second)
			s.check(context.Background())
			assert.Empty(t, link.sentFrames())

			mock.Add(time.Second)
			s.check(context.Background())
			assert.Equal(t, []string{tt.frame}, link.sentFrames())
			assert.Equal(t, int64(1), s.Sent())
		})
	}
}

func TestService_NegotiatedInterval(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolWiThrottle)
	s := testService(link, mock, nil)

	s.SetInterval(4 * time.Second)
	assert.Equal(t, 4*time.Second, s.Interval())

	// 心跳在协商间隔的一半发出，早于服务器的期限
	mock.Add(time.Second)
	s.check(context.Background())
	assert.Empty(t, link.sentFrames())

	mock.Add(time.Second)
	s.check(context.Background())
	assert.Len(t, link.sentFrames(), 1)

	// 检查周期的抖动也不会让两次心跳间隔超过协商值
	for i := 0; i < 20; i++ {
		mock.Add(1500 * time.Millisecond)
		s.check(context.Background())
	}
	frames := link.sentFrames()
	assert.GreaterOrEqual(t, len(frames), 1+30/4)

	s.SetInterval(0)
	assert.Equal(t, 10*time.Second, s.Interval())
}

func TestService_SkipsWhenDisconnected(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolDCCEx)
	link.connected = false
	s := testService(link, mock, nil)

	mock.Add(time.Minute)
	s.check(context.Background())
	assert.Empty(t, link.sentFrames())
	assert.Empty(t, link.kills())
}

func TestService_ShowKeepAliveTraces(t *testing.T) {
	mock := clock.NewMock()
	bus := eventbus.NewBus()
	link := newMockLink(mock, types.ProtocolDCCEx)
	s := testService(link, mock, bus)
	s.SetShowKeepAlive(true)

	mock.Add(10 * time.Second)
	s.check(context.Background())

	line, ok, err := bus.Diag.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(line, "keepalive tx <#>"))
}

// ============================================================================
//                              失效判定
// ============================================================================

func TestService_DCCExSilentStationIsKilled(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolDCCEx)
	s := testService(link, mock, nil)

	// 心跳照常发出，但指令站不应答
	for i := 0; i < 21; i++ {
		mock.Add(time.Second)
		s.check(context.Background())
	}
	assert.Empty(t, link.kills())

	mock.Add(time.Second)
	s.check(context.Background())
	assert.Equal(t, []string{"keepalive timeout"}, link.kills())
	assert.Equal(t, int64(1), s.Kills())
}

func TestService_DCCExRepliesKeepAlive(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolDCCEx)
	s := testService(link, mock, nil)

	for i := 0; i < 60; i++ {
		mock.Add(time.Second)
		if i%10 == 9 {
			link.receive()
		}
		s.check(context.Background())
	}
	assert.Empty(t, link.kills())
}

func TestService_WiThrottleOutboundCountsAsActivity(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolWiThrottle)
	s := testService(link, mock, nil)

	for i := 0; i < 60; i++ {
		mock.Add(time.Second)
		s.check(context.Background())
	}
	assert.Empty(t, link.kills())
	assert.Len(t, link.sentFrames(), 12)
}

func TestService_WiThrottleSendFailureLeadsToKill(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolWiThrottle)
	link.sendErr = errors.New("broken pipe")
	s := testService(link, mock, nil)

	mock.Add(22 * time.Second)
	s.check(context.Background())
	assert.Equal(t, []string{"keepalive timeout"}, link.kills())
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestService_StartRequiresLink(t *testing.T) {
	s := NewService(DefaultConfig(), nil, nil, nil)
	assert.ErrorIs(t, s.Start(context.Background()), ErrNoLink)
}

func TestService_LoopRunsOnTicker(t *testing.T) {
	mock := clock.NewMock()
	link := newMockLink(mock, types.ProtocolDCCEx)
	s := testService(link, mock, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return len(link.sentFrames()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrServiceClosed)
}
