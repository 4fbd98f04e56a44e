package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("dispatch")

// 确保实现了接口
var _ interfaces.SessionHandler = (*Dispatcher)(nil)

// ServerType WiThrottle 客户端看到的服务器类型
const ServerType = "miniThrottle"

// DefaultCVTimeout 编程轨应答等待上限
const DefaultCVTimeout = 10 * time.Second

// Clock 快钟服务
type Clock interface {
	// Observe 记录上游下发的时间（从属模式）
	Observe(t types.FastClockTime)

	// Set 设置时间（权威模式）
	Set(t types.FastClockTime)

	// Now 返回当前快钟时间
	Now() types.FastClockTime

	// Authoritative 本机是否为权威时钟
	Authoritative() bool
}

// HeartbeatSink 接收协商得到的上游心跳间隔
type HeartbeatSink interface {
	SetInterval(d time.Duration)
}

// Dispatcher 协议分发器
type Dispatcher struct {
	cfg     *config.Config
	tables  *state.Tables
	bus     *eventbus.Bus
	metrics metrics.Reporter
	clock   clock.Clock

	hardwareID string
	cvTimeout  time.Duration

	mu        sync.RWMutex
	upstream  interfaces.Upstream
	fanout    interfaces.Fanout
	fastClock Clock
	heartbeat HeartbeatSink

	power       atomic.Int32
	initSent    atomic.Bool
	showPackets atomic.Bool
	serverDesc  atomic.Value // string

	letters *letterBook

	cvPending atomic.Bool
	cvOwner   atomic.Int32
	cvSeq     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running atomic.Bool
}

// New 创建分发器
func New(cfg *config.Config, tables *state.Tables, bus *eventbus.Bus, reporter metrics.Reporter, clk clock.Clock) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}
	if reporter == nil {
		reporter = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:        cfg,
		tables:     tables,
		bus:        bus,
		metrics:    reporter,
		clock:      clk,
		hardwareID: uuid.NewString(),
		cvTimeout:  DefaultCVTimeout,
		letters:    newLetterBook(),
		ctx:        ctx,
		cancel:     cancel,
	}
	d.serverDesc.Store("")
	d.cvOwner.Store(types.NoSlot)
	d.showPackets.Store(cfg.Upstream.ShowPackets)
	return d
}

// ============================================================================
//                              协作方
// ============================================================================

// SetUpstream 设置上游会话
func (d *Dispatcher) SetUpstream(u interfaces.Upstream) {
	d.mu.Lock()
	d.upstream = u
	d.mu.Unlock()
}

// SetFanout 设置中继扇出
func (d *Dispatcher) SetFanout(f interfaces.Fanout) {
	d.mu.Lock()
	d.fanout = f
	d.mu.Unlock()
}

// SetClock 设置快钟服务
func (d *Dispatcher) SetClock(c Clock) {
	d.mu.Lock()
	d.fastClock = c
	d.mu.Unlock()
}

// SetHeartbeat 设置心跳间隔接收方
func (d *Dispatcher) SetHeartbeat(h HeartbeatSink) {
	d.mu.Lock()
	d.heartbeat = h
	d.mu.Unlock()
}

func (d *Dispatcher) getUpstream() interfaces.Upstream {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.upstream
}

func (d *Dispatcher) getFanout() interfaces.Fanout {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fanout
}

func (d *Dispatcher) getClock() Clock {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fastClock
}

func (d *Dispatcher) getHeartbeat() HeartbeatSink {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.heartbeat
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动输入事件泵
func (d *Dispatcher) Start(_ context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.RunInputs(d.ctx)
	}()
	return nil
}

// Stop 停止输入事件泵并等待进路执行结束
func (d *Dispatcher) Stop(_ context.Context) error {
	if !d.running.CompareAndSwap(true, false) {
		return nil
	}
	d.cancel()
	d.wg.Wait()
	return nil
}

// ============================================================================
//                              状态查询
// ============================================================================

// Power 当前轨道电源状态
func (d *Dispatcher) Power() types.PowerState {
	return types.PowerState(d.power.Load())
}

// ServerDesc 上游自报的描述
func (d *Dispatcher) ServerDesc() string {
	s, _ := d.serverDesc.Load().(string)
	return s
}

// UpstreamProtocol 上游协议，未连接时为 Undefined
func (d *Dispatcher) UpstreamProtocol() types.Protocol {
	if up := d.getUpstream(); up != nil && up.Connected() {
		return up.Protocol()
	}
	return types.ProtocolUndefined
}

// RelayProtocol 中继协议，中继未运行时为 Undefined
func (d *Dispatcher) RelayProtocol() types.Protocol {
	if f := d.getFanout(); f != nil && f.Active() {
		return f.Protocol()
	}
	return types.ProtocolUndefined
}

// SetShowPackets 开关帧跟踪
func (d *Dispatcher) SetShowPackets(on bool) { d.showPackets.Store(on) }

// ShowPackets 是否跟踪帧
func (d *Dispatcher) ShowPackets() bool { return d.showPackets.Load() }

// Tables 返回共享表
func (d *Dispatcher) Tables() *state.Tables { return d.tables }

// ============================================================================
//                              帧入口
// ============================================================================

// HandleFrame 处理一帧
//
// 错误只记录到诊断队列，从不中断会话。
func (d *Dispatcher) HandleFrame(ctx context.Context, src types.Source, frame string) {
	if frame == "" {
		return
	}
	if d.showPackets.Load() {
		d.bus.Diagf("<- %s %s", src, frame)
	}

	var err error
	switch src.Kind {
	case types.SourceUpstream:
		switch d.UpstreamProtocol() {
		case types.ProtocolWiThrottle:
			err = d.upstreamWiThrottle(ctx, frame)
		case types.ProtocolDCCEx:
			err = d.upstreamDCCEx(ctx, frame)
		default:
			err = types.ErrNotConnected
		}
	case types.SourceRelay:
		switch d.RelayProtocol() {
		case types.ProtocolWiThrottle:
			err = d.clientWiThrottle(ctx, src.Slot, frame)
		case types.ProtocolDCCEx:
			err = d.clientDCCEx(ctx, src.Slot, frame)
		default:
			err = types.ErrUnsupported
		}
	default:
		err = types.ErrUnsupported
	}

	if err != nil {
		d.reject(src, frame, err)
	}
}

// reject 记录被丢弃的帧
func (d *Dispatcher) reject(src types.Source, frame string, err error) {
	reason := metrics.DropMalformed
	switch {
	case errors.Is(err, types.ErrLockTimeout):
		reason = metrics.DropLockTimeout
		d.metrics.LogLockTimeout()
		log.Warn("锁超时，放弃本帧", "source", src.String(), "frame", frame, "err", err)
	case errors.Is(err, types.ErrUnknownFrame):
		reason = metrics.DropUnknown
		log.Debug("未识别的帧", "source", src.String(), "frame", frame)
	case errors.Is(err, types.ErrNotConnected):
		reason = metrics.DropNotConnect
		log.Debug("上游未连接，丢弃帧", "source", src.String(), "frame", frame)
	default:
		log.Debug("丢弃帧", "source", src.String(), "frame", frame, "err", err)
	}
	d.metrics.LogDropped(reason)
	d.bus.Diagf("drop %s %q: %v", src, frame, err)
}

// ============================================================================
//                              会话
// ============================================================================

// SessionStarted 上游协议识别完成
//
// 清空缓存表后发送一次初始数据订阅，initSent 保证同一会话不会重复请求。
func (d *Dispatcher) SessionStarted(ctx context.Context, proto types.Protocol) {
	if err := d.tables.ResetSession(ctx); err != nil {
		log.Warn("清空会话缓存失败", "err", err)
		d.bus.Diagf("session reset failed: %v", err)
	}
	d.letters.reset()
	d.power.Store(int32(types.PowerUnknown))

	if d.initSent.CompareAndSwap(false, true) {
		for _, f := range d.initialRequests(proto) {
			if err := d.sendUpstream(ctx, f); err != nil {
				log.Warn("发送初始请求失败", "frame", f, "err", err)
				break
			}
		}
	}

	log.Info("上游会话开始", "protocol", proto.String())
	d.publish(types.Change{Kind: types.ChangeLinkUp, Source: types.UpstreamSource(), Message: proto.String()})
}

// initialRequests 初始数据订阅序列：名册、电源、道岔、进路
func (d *Dispatcher) initialRequests(proto types.Protocol) []string {
	switch proto {
	case types.ProtocolWiThrottle:
		// WiThrottle 服务器在收到名称后主动推送名册、电源、道岔与进路
		return []string{
			withrottle.Name(d.cfg.Name),
			withrottle.HardwareID(d.hardwareID),
		}
	case types.ProtocolDCCEx:
		reqs := []string{
			dccex.Status(),
			dccex.ListRoster(),
			dccex.ListTurnouts(),
			dccex.ListRoutes(),
		}
		if c := d.getClock(); c == nil || !c.Authoritative() {
			reqs = append(reqs, dccex.QueryClock())
		}
		return reqs
	}
	return nil
}

// SessionEnded 上游会话结束
func (d *Dispatcher) SessionEnded(_ context.Context) {
	d.initSent.Store(false)
	d.power.Store(int32(types.PowerUnknown))
	d.letters.reset()
	if d.cvPending.Swap(false) {
		d.deliverCV(types.CVResult{CV: 0, Value: -1})
	}
	log.Info("上游会话结束")
	d.publish(types.Change{Kind: types.ChangeLinkDown, Source: types.UpstreamSource(), Message: NotConnectedText})
}

// ============================================================================
//                              出站
// ============================================================================

// publish 把变更送往更新队列与中继
func (d *Dispatcher) publish(c types.Change) {
	if d.bus != nil {
		d.bus.Updates.Emit(c)
	}
	if f := d.getFanout(); f != nil && f.Active() {
		f.Publish(c)
	}
}

// sendUpstream 向上游写一帧
func (d *Dispatcher) sendUpstream(ctx context.Context, frame string) error {
	if frame == "" {
		return nil
	}
	up := d.getUpstream()
	if up == nil {
		return ErrNoUpstream
	}
	if !up.Connected() {
		return types.ErrNotConnected
	}
	if d.showPackets.Load() {
		d.bus.Diagf("-> upstream %s", frame)
	}
	return up.Send(ctx, frame)
}

// sendAll 依次写出多帧，遇错停止
func (d *Dispatcher) sendAll(ctx context.Context, frames ...string) error {
	for _, f := range frames {
		if err := d.sendUpstream(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// reply 直接应答中继客户端
func (d *Dispatcher) reply(slot int, frames ...string) {
	if len(frames) == 0 {
		return
	}
	f := d.getFanout()
	if f == nil {
		return
	}
	if d.showPackets.Load() {
		for _, fr := range frames {
			d.bus.Diagf("-> relay[%d] %s", slot, fr)
		}
	}
	f.SendTo(slot, frames...)
}

// notConnected 告知中继客户端上游不可用
func (d *Dispatcher) notConnected(slot int) {
	switch d.RelayProtocol() {
	case types.ProtocolWiThrottle:
		d.reply(slot, withrottle.Alert(NotConnectedText))
	case types.ProtocolDCCEx:
		d.reply(slot, dccex.Fail())
	}
}

// replyError 按错误类型应答中继客户端
//
// 上游不可用与资源不足会显式告知客户端，其余错误交给 HandleFrame 记录。
func (d *Dispatcher) replyError(slot int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrNotConnected), errors.Is(err, ErrNoUpstream):
		d.notConnected(slot)
		return nil
	case errors.Is(err, types.ErrUnknownTurnout), errors.Is(err, types.ErrUnknownRoute),
		errors.Is(err, types.ErrRouteBusy), errors.Is(err, types.ErrConsistFull),
		errors.Is(err, types.ErrUnsupported):
		switch d.RelayProtocol() {
		case types.ProtocolWiThrottle:
			d.reply(slot, withrottle.Alert(err.Error()))
		case types.ProtocolDCCEx:
			d.reply(slot, dccex.Fail())
		}
		return nil
	}
	return err
}
