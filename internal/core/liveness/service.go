// Package liveness 提供上游会话保活服务
package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/protocol"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("liveness: service closed")
	// ErrNoLink 未提供上游链路
	ErrNoLink = errors.New("liveness: no upstream link")
)

// ============================================================================
//                              依赖接口
// ============================================================================

// Link 保活服务需要的上游会话能力（由连接管理器实现）
type Link interface {
	interfaces.Upstream

	// Activity 最近一次收、发帧的时间
	Activity() (lastIn, lastOut time.Time)

	// Kill 结束当前会话
	Kill(reason string)
}

// ============================================================================
//                              配置
// ============================================================================

// Config 保活配置
type Config struct {
	// Interval 默认心跳间隔，WiThrottle 协商结果覆盖它
	Interval time.Duration

	// Margin 判定失效的余量
	Margin time.Duration

	// CheckInterval 检查周期
	CheckInterval time.Duration

	// ShowKeepAlive 把心跳写入诊断队列
	ShowKeepAlive bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Interval:      config.DefaultKeepAliveInterval,
		Margin:        config.DefaultKeepAliveMargin,
		CheckInterval: config.DefaultKeepAliveCheck,
	}
}

// Validate 修正无效值
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Margin < 0 {
		c.Margin = def.Margin
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
}

// ConfigFromUnified 从统一配置生成保活配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.Interval = cfg.Keepalive.Interval
	c.Margin = cfg.Keepalive.Margin
	c.CheckInterval = cfg.Keepalive.CheckInterval
	c.ShowKeepAlive = cfg.Keepalive.ShowKeepAlive
	c.Validate()
	return c
}

// DeadAfter 给定心跳间隔下判定失效的静默时长
func (c Config) DeadAfter(interval time.Duration) time.Duration {
	return 2*interval + c.Margin
}

// ============================================================================
//                              Service 实现
// ============================================================================

// Service 上游保活服务
//
// 出站空闲满一个心跳间隔（WiThrottle 为半个间隔）时发送心跳帧；
// 静默超过 2*间隔+余量时结束会话。
// DCC-Ex 指令站会应答 <#>，因此只看入站；WiThrottle 服务器不应答 *，
// 收发任一方向有流量即视为存活，失效由写失败暴露。
type Service struct {
	cfg   Config
	link  Link
	bus   *eventbus.Bus
	clock clock.Clock

	// interval 当前心跳间隔（纳秒）
	interval atomic.Int64
	showKA   atomic.Bool

	sent  atomic.Int64
	kills atomic.Int64

	running int32
	closed  int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService 创建保活服务
func NewService(cfg Config, link Link, bus *eventbus.Bus, clk clock.Clock) *Service {
	cfg.Validate()
	if clk == nil {
		clk = clock.New()
	}
	s := &Service{
		cfg:   cfg,
		link:  link,
		bus:   bus,
		clock: clk,
	}
	s.interval.Store(int64(cfg.Interval))
	s.showKA.Store(cfg.ShowKeepAlive)
	return s
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动检查循环
func (s *Service) Start(_ context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServiceClosed
	}
	if s.link == nil {
		return ErrNoLink
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}

	// Fx OnStart 的 ctx 在返回后即被取消，后台循环使用独立 ctx
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ticker := s.clock.Ticker(s.cfg.CheckInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.loop(ctx, ticker)
	}()

	log.Info("保活服务已启动", "interval", s.Interval(), "margin", s.cfg.Margin)
	return nil
}

// Stop 停止检查循环
func (s *Service) Stop(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	atomic.StoreInt32(&s.running, 0)
	log.Info("保活服务已停止")
	return nil
}

func (s *Service) loop(ctx context.Context, ticker *clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// ============================================================================
//                              心跳间隔
// ============================================================================

// SetInterval 更新心跳间隔，d <= 0 时恢复默认值
func (s *Service) SetInterval(d time.Duration) {
	if d <= 0 {
		d = s.cfg.Interval
	}
	if time.Duration(s.interval.Swap(int64(d))) != d {
		log.Info("上游心跳间隔已更新", "interval", d)
	}
}

// Interval 当前心跳间隔
func (s *Service) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetShowKeepAlive 开关心跳诊断输出
func (s *Service) SetShowKeepAlive(on bool) { s.showKA.Store(on) }

// Sent 已发送的心跳数
func (s *Service) Sent() int64 { return s.sent.Load() }

// Kills 因静默而结束的会话数
func (s *Service) Kills() int64 { return s.kills.Load() }

// ============================================================================
//                              检查
// ============================================================================

// check 执行一次保活检查
func (s *Service) check(ctx context.Context) {
	if !s.link.Connected() {
		return
	}
	proto := s.link.Protocol()
	now := s.clock.Now()
	lastIn, lastOut := s.link.Activity()
	iv := s.Interval()

	if lastOut.IsZero() || now.Sub(lastOut) >= sendAfter(proto, iv) {
		s.sendKeepalive(ctx, proto)
	}

	ref := lastIn
	if proto != types.ProtocolDCCEx && lastOut.After(ref) {
		ref = lastOut
	}
	if ref.IsZero() {
		return
	}
	if idle, limit := now.Sub(ref), s.cfg.DeadAfter(iv); idle > limit {
		s.kills.Add(1)
		log.Warn("上游静默超时，结束会话", "idle", idle, "limit", limit, "protocol", proto.String())
		s.bus.Diagf("keepalive: upstream silent for %s, dropping session", idle)
		s.link.Kill("keepalive timeout")
	}
}

// sendAfter 出站空闲多久后发送心跳
//
// WiThrottle 服务器在协商间隔内收不到帧就会停车，心跳在半个间隔时发出，
// 检查周期的抖动不会让它越过服务器的期限。
func sendAfter(proto types.Protocol, iv time.Duration) time.Duration {
	if proto == types.ProtocolWiThrottle {
		return iv / 2
	}
	return iv
}

func (s *Service) sendKeepalive(ctx context.Context, proto types.Protocol) {
	frame := protocol.Keepalive(proto)
	if frame == "" {
		return
	}
	if err := s.link.Send(ctx, frame); err != nil {
		log.Debug("心跳发送失败", "err", err)
		return
	}
	s.sent.Add(1)
	if s.showKA.Load() {
		s.bus.Diagf("keepalive tx %s", frame)
	}
}
