package fastclock

import (
	"context"
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
//                              测试替身
// ============================================================================

type fakeFanout struct {
	mu      sync.Mutex
	changes []types.Change
}

func (f *fakeFanout) Active() bool             { return true }
func (f *fakeFanout) Protocol() types.Protocol { return types.ProtocolWiThrottle }
func (f *fakeFanout) SendTo(int, ...string)    {}
func (f *fakeFanout) Bind(int, byte, uint16)   {}
func (f *fakeFanout) Unbind(int, byte, uint16) {}
func (f *fakeFanout) Bound(int, byte) []uint16 { return nil }
func (f *fakeFanout) Disconnect(int)           {}

func (f *fakeFanout) Publish(c types.Change) {
	f.mu.Lock()
	f.changes = append(f.changes, c)
	f.mu.Unlock()
}

func (f *fakeFanout) published() []types.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Change(nil), f.changes...)
}

type fakeUpstream struct {
	mu    sync.Mutex
	proto types.Protocol
	sent  []string
}

func (u *fakeUpstream) Send(_ context.Context, frame string) error {
	u.mu.Lock()
	u.sent = append(u.sent, frame)
	u.mu.Unlock()
	return nil
}
func (u *fakeUpstream) Protocol() types.Protocol { return u.proto }
func (u *fakeUpstream) Connected() bool          { return true }

func (u *fakeUpstream) frames() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.sent...)
}

func authoritative(rate float64) Config {
	cfg := DefaultConfig()
	cfg.Authoritative = true
	cfg.Start = types.FastClockTime{Seconds: 6 * 3600, Rate: rate}
	return cfg
}

// ============================================================================
//                              配置
// ============================================================================

func TestConfigFromUnified(t *testing.T) {
	uc := config.NewConfig()
	uc.Relay.Mode = types.RelayWiThrottle
	uc.FastClock.Hour = 7
	uc.FastClock.Minute = 30
	uc.FastClock.Rate = 4

	cfg := ConfigFromUnified(uc)
	assert.True(t, cfg.Authoritative)
	assert.Equal(t, uint32(7*3600+30*60), cfg.Start.Seconds)
	assert.Equal(t, 4.0, cfg.Start.Rate)

	uc.FastClock.Rate = 0
	assert.False(t, ConfigFromUnified(uc).Authoritative)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Start: types.FastClockTime{Seconds: secondsPerDay + 60, Rate: -1}}
	cfg.Validate()
	assert.Equal(t, uint32(60), cfg.Start.Seconds)
	assert.Zero(t, cfg.Start.Rate)
	assert.Equal(t, config.DefaultFastClockBroadcast, cfg.BroadcastInterval)
}

// ============================================================================
//                              时间推进
// ============================================================================

func TestService_AuthoritativeAdvancesByRate(t *testing.T) {
	mock := clock.NewMock()
	s := New(authoritative(4), mock, nil, nil, nil)

	assert.True(t, s.Authoritative())
	assert.Equal(t, uint32(6*3600), s.Now().Seconds)

	mock.Add(15 * time.Second)
	now := s.Now()
	assert.Equal(t, 6, now.Hour())
	assert.Equal(t, 1, now.Minute())
	assert.Equal(t, "06:01 x4", Format(now))
}

func TestService_WrapsAtMidnight(t *testing.T) {
	mock := clock.NewMock()
	s := New(authoritative(60), mock, nil, nil, nil)
	s.Set(types.FastClockTime{Seconds: 23*3600 + 59*60, Rate: 60})

	mock.Add(2 * time.Second)
	now := s.Now()
	assert.Equal(t, 0, now.Hour())
	assert.Equal(t, 1, now.Minute())
}

func TestService_StoppedClockDoesNotAdvance(t *testing.T) {
	mock := clock.NewMock()
	s := New(authoritative(0), mock, nil, nil, nil)

	mock.Add(time.Hour)
	assert.Equal(t, uint32(6*3600), s.Now().Seconds)
}

func TestService_FollowerObserves(t *testing.T) {
	mock := clock.NewMock()
	s := New(DefaultConfig(), mock, nil, nil, nil)

	assert.False(t, s.Authoritative())
	assert.False(t, s.Valid())
	assert.Equal(t, types.FastClockTime{}, s.Now())

	s.Observe(types.FastClockTime{Seconds: 12 * 3600, Rate: 2})
	mock.Add(30 * time.Second)
	assert.True(t, s.Valid())
	assert.Equal(t, uint32(12*3600+60), s.Now().Seconds)
}

// ============================================================================
//                              广播
// ============================================================================

func TestService_BroadcastPublishes(t *testing.T) {
	mock := clock.NewMock()
	bus := eventbus.NewBus()
	fan := &fakeFanout{}
	up := &fakeUpstream{proto: types.ProtocolDCCEx}
	cfg := authoritative(1)
	cfg.SendToStation = true
	s := New(cfg, mock, bus, fan, up)

	s.Broadcast(context.Background())

	require.Len(t, fan.published(), 1)
	c := fan.published()[0]
	assert.Equal(t, types.ChangeFastClock, c.Kind)
	assert.Equal(t, types.SourceLocal, c.Source.Kind)
	assert.Equal(t, []string{"<JC 360 1>"}, up.frames())

	got, ok, err := bus.Updates.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ChangeFastClock, got.Kind)
}

func TestService_BroadcastSkipsWiThrottleStation(t *testing.T) {
	up := &fakeUpstream{proto: types.ProtocolWiThrottle}
	cfg := authoritative(1)
	cfg.SendToStation = true
	s := New(cfg, clock.NewMock(), nil, &fakeFanout{}, up)

	s.Broadcast(context.Background())
	assert.Empty(t, up.frames())
}

func TestService_BroadcastLoop(t *testing.T) {
	mock := clock.NewMock()
	fan := &fakeFanout{}
	s := New(authoritative(1), mock, nil, fan, nil)

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		mock.Add(config.DefaultFastClockBroadcast)
		return len(fan.published()) >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestService_FollowerDoesNotBroadcast(t *testing.T) {
	mock := clock.NewMock()
	fan := &fakeFanout{}
	s := New(DefaultConfig(), mock, nil, fan, nil)

	require.NoError(t, s.Start(context.Background()))
	mock.Add(5 * time.Minute)
	require.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, fan.published())
}
