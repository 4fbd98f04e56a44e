// Package fastclock 提供模型铁路快钟服务
//
// 权威模式下本机按倍率推进虚拟时间并定期广播；
// 从属模式下记录上游下发的时间，并在两次下发之间按倍率插值。
package fastclock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("fastclock")

// secondsPerDay 快钟一天的秒数
const secondsPerDay = 24 * 60 * 60

// ============================================================================
//                              配置
// ============================================================================

// Config 快钟配置
type Config struct {
	// Authoritative 本机是否为权威时钟
	Authoritative bool

	// Start 权威模式的起始时间
	Start types.FastClockTime

	// BroadcastInterval 权威模式广播周期（真实时间）
	BroadcastInterval time.Duration

	// SendToStation 广播时同时写给 DCC-Ex 指令站
	SendToStation bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Start:             types.FastClockTime{Seconds: 6 * 3600},
		BroadcastInterval: config.DefaultFastClockBroadcast,
	}
}

// Validate 修正无效值
func (c *Config) Validate() {
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = config.DefaultFastClockBroadcast
	}
	if c.Start.Rate < 0 {
		c.Start.Rate = 0
	}
	if c.Start.Rate > config.MaxFastClockRate {
		c.Start.Rate = config.MaxFastClockRate
	}
	c.Start.Seconds %= secondsPerDay
}

// ConfigFromUnified 从统一配置生成快钟配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	fc := cfg.FastClock
	c.Authoritative = cfg.FastClockAuthoritative()
	c.Start = types.FastClockTime{
		Seconds: uint32(fc.Hour*3600 + fc.Minute*60),
		Rate:    fc.Rate,
	}
	c.BroadcastInterval = fc.BroadcastInterval
	c.SendToStation = fc.SendToStation
	c.Validate()
	return c
}

// ============================================================================
//                              Service 实现
// ============================================================================

// Service 快钟服务
type Service struct {
	cfg      Config
	clock    clock.Clock
	bus      *eventbus.Bus
	fanout   interfaces.Fanout
	upstream interfaces.Upstream

	mu     sync.Mutex
	base   types.FastClockTime
	anchor time.Time
	valid  bool

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 创建快钟服务
//
// fanout、upstream 与 bus 均可为 nil。
func New(cfg Config, clk clock.Clock, bus *eventbus.Bus, fanout interfaces.Fanout, upstream interfaces.Upstream) *Service {
	cfg.Validate()
	if clk == nil {
		clk = clock.New()
	}
	s := &Service{
		cfg:      cfg,
		clock:    clk,
		bus:      bus,
		fanout:   fanout,
		upstream: upstream,
	}
	if cfg.Authoritative {
		s.base = cfg.Start
		s.anchor = clk.Now()
		s.valid = true
	}
	return s
}

// ============================================================================
//                              时间
// ============================================================================

// Authoritative 本机是否为权威时钟
func (s *Service) Authoritative() bool { return s.cfg.Authoritative }

// Now 返回当前快钟时间
func (s *Service) Now() types.FastClockTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *Service) nowLocked() types.FastClockTime {
	if !s.valid {
		return types.FastClockTime{}
	}
	t := s.base
	if t.Rate > 0 {
		elapsed := s.clock.Since(s.anchor).Seconds() * t.Rate
		t.Seconds = uint32((uint64(t.Seconds) + uint64(elapsed)) % secondsPerDay)
	}
	return t
}

// Valid 是否已有时间（从属模式下收到上游时间之前为 false）
func (s *Service) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Set 设置时间（权威模式）
func (s *Service) Set(t types.FastClockTime) {
	s.store(t)
	log.Info("快钟已设置", "time", Format(t))
}

// Observe 记录上游下发的时间（从属模式）
func (s *Service) Observe(t types.FastClockTime) {
	s.store(t)
	log.Debug("收到上游快钟", "time", Format(t))
}

func (s *Service) store(t types.FastClockTime) {
	t.Seconds %= secondsPerDay
	s.mu.Lock()
	s.base = t
	s.anchor = s.clock.Now()
	s.valid = true
	s.mu.Unlock()
}

// Format 以 "HH:MM xRate" 显示快钟时间
func Format(t types.FastClockTime) string {
	return fmt.Sprintf("%02d:%02d x%g", t.Hour(), t.Minute(), t.Rate)
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 权威模式下启动广播循环
func (s *Service) Start(_ context.Context) error {
	if !s.cfg.Authoritative {
		log.Info("快钟为从属模式")
		return nil
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	ticker := s.clock.Ticker(s.cfg.BroadcastInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Broadcast(ctx)
			}
		}
	}()

	log.Info("权威快钟已启动", "start", Format(s.cfg.Start), "broadcast", s.cfg.BroadcastInterval)
	return nil
}

// Stop 停止广播循环
func (s *Service) Stop(_ context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	return nil
}

// Broadcast 向中继客户端（及按配置向指令站）推送当前时间
func (s *Service) Broadcast(ctx context.Context) {
	t := s.Now()
	c := types.Change{Kind: types.ChangeFastClock, Source: types.LocalSource(), Clock: t}
	if s.bus != nil {
		s.bus.Updates.Emit(c)
	}
	if s.fanout != nil && s.fanout.Active() {
		s.fanout.Publish(c)
	}

	if !s.cfg.SendToStation || s.upstream == nil {
		return
	}
	if !s.upstream.Connected() || s.upstream.Protocol() != types.ProtocolDCCEx {
		return
	}
	if err := s.upstream.Send(ctx, dccex.SetClock(t)); err != nil {
		log.Debug("快钟写入指令站失败", "err", err)
	}
}
