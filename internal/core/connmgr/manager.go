package connmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/protocol"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("connmgr")

// 确保实现了接口
var _ interfaces.Upstream = (*Manager)(nil)

// 显示状态文本
const (
	StatusNoConnection = "No Connection"
	StatusConnecting   = "Connecting"
	StatusDetecting    = "Detecting"
	StatusConnected    = "Connected"
)

// Manager 上游连接管理器
type Manager struct {
	cfg     Config
	dialer  interfaces.Dialer
	handler interfaces.SessionHandler
	display interfaces.Display
	metrics metrics.Reporter
	clock   clock.Clock

	limiter   *rate.Limiter
	linkGuard *state.Guard

	state atomic.Int32

	mu         sync.RWMutex
	link       interfaces.Link
	proto      types.Protocol
	server     string
	endSession context.CancelFunc
	killReason string

	// probeFor 下一次识别阶段按哪种协议探测，识别超时后轮换
	probeFor types.Protocol

	lastIn  atomic.Int64
	lastOut atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New 创建连接管理器
//
// display、reporter、clk 可以为 nil。
func New(cfg Config, dialer interfaces.Dialer, handler interfaces.SessionHandler,
	display interfaces.Display, reporter metrics.Reporter, clk clock.Clock) *Manager {
	cfg.Validate()
	if clk == nil {
		clk = clock.New()
	}
	if reporter == nil {
		reporter = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		handler:   handler,
		display:   display,
		metrics:   reporter,
		clock:     clk,
		limiter:   rate.NewLimiter(rate.Limit(cfg.WriteRate), cfg.WriteBurst),
		linkGuard: state.NewGuard(state.RankLink, cfg.LockTimeout),
		probeFor:  cfg.PreferredProtocol,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.state.Store(int32(types.ConnDisconnected))
	return m
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动管理循环
func (m *Manager) Start(_ context.Context) error {
	if m.dialer == nil {
		return ErrNoDialer
	}
	if m.handler == nil {
		return ErrNoHandler
	}
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(m.ctx)
	}()

	log.Info("连接管理器已启动", "dialer", m.dialer.String(), "preferred", m.cfg.PreferredProtocol.String())
	return nil
}

// Stop 停止管理循环并关闭当前会话
func (m *Manager) Stop(ctx context.Context) error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}
	// WiThrottle 服务器收到 Q 后立即释放本会话占用的机车
	if m.Connected() && m.Protocol() == types.ProtocolWiThrottle {
		if err := m.Send(ctx, withrottle.Quit()); err != nil {
			log.Debug("发送退出帧失败", "err", err)
		}
	}
	m.cancel()
	m.wg.Wait()
	log.Info("连接管理器已停止")
	return nil
}

// ============================================================================
//                              Upstream 接口
// ============================================================================

// Send 向指令站发送一帧
//
// 写入受速率限制；写失败会结束当前会话。
func (m *Manager) Send(ctx context.Context, frame string) error {
	m.mu.RLock()
	link := m.link
	m.mu.RUnlock()
	if link == nil || !m.Connected() {
		return types.ErrNotConnected
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := m.linkGuard.Acquire(ctx); err != nil {
		return err
	}
	err := link.WriteFrame(ctx, frame)
	m.linkGuard.Release()

	if err != nil {
		log.Warn("上游写入失败", "frame", frame, "err", err)
		m.Kill("write failed")
		return fmt.Errorf("%w: %v", types.ErrNotConnected, err)
	}
	m.lastOut.Store(m.clock.Now().UnixNano())
	m.metrics.LogFrameOut(types.UpstreamSource())
	return nil
}

// Protocol 返回已识别的协议
func (m *Manager) Protocol() types.Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.proto
}

// Connected 是否已连接且协议已确定
func (m *Manager) Connected() bool {
	return m.State() == types.ConnConnected
}

// ============================================================================
//                              状态查询
// ============================================================================

// State 返回当前状态
func (m *Manager) State() types.ConnState {
	return types.ConnState(m.state.Load())
}

// Server 返回当前对端描述
func (m *Manager) Server() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.server
}

// Activity 返回最近一次收、发帧的时间
//
// 尚无记录时返回零值。
func (m *Manager) Activity() (lastIn, lastOut time.Time) {
	return unixNano(m.lastIn.Load()), unixNano(m.lastOut.Load())
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Kill 结束当前会话，管理循环随后按退避重连
func (m *Manager) Kill(reason string) {
	m.mu.Lock()
	end := m.endSession
	if end != nil && m.killReason == "" {
		m.killReason = reason
	}
	m.mu.Unlock()

	if end != nil {
		log.Info("结束上游会话", "reason", reason)
		end()
	}
}

func (m *Manager) setState(s types.ConnState, status ...string) {
	m.state.Store(int32(s))
	m.metrics.SetConnState(s)
	if m.display != nil && len(status) > 0 {
		m.display.Status(status...)
	}
}

// ============================================================================
//                              管理循环
// ============================================================================

// run 连接、监督、退避，直到 ctx 结束
func (m *Manager) run(ctx context.Context) {
	m.setState(types.ConnDisconnected, StatusNoConnection)

	failures := 0
	for ctx.Err() == nil {
		connectedFor, err := m.session(ctx)
		if ctx.Err() != nil {
			return
		}

		failures = m.cfg.nextAttempt(failures, connectedFor)
		delay := m.cfg.calculateBackoff(failures)
		m.metrics.LogReconnect()
		log.Info("上游会话结束，等待重连",
			"err", err,
			"connectedFor", connectedFor,
			"attempt", failures,
			"delay", delay)

		timer := m.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session 运行一次完整会话，返回 Connected 状态持续的时长
func (m *Manager) session(ctx context.Context) (time.Duration, error) {
	m.setState(types.ConnConnecting, StatusConnecting, m.dialer.String())

	dialCtx, cancel := m.clock.WithTimeout(ctx, m.cfg.DialTimeout)
	link, err := m.dialer.Dial(dialCtx)
	cancel()
	if err != nil {
		m.setState(types.ConnDisconnected, StatusNoConnection)
		return 0, fmt.Errorf("dial %s: %w", m.dialer, err)
	}
	defer link.Close()

	m.setState(types.ConnDetecting, StatusDetecting, link.RemoteAddr())
	proto, first, err := m.detect(ctx, link)
	if err != nil {
		m.setState(types.ConnDisconnected, StatusNoConnection)
		return 0, err
	}

	sctx, endSession := context.WithCancel(ctx)
	defer endSession()

	now := m.clock.Now()
	m.mu.Lock()
	m.link = link
	m.proto = proto
	m.server = link.RemoteAddr()
	m.endSession = endSession
	m.killReason = ""
	m.mu.Unlock()
	m.lastIn.Store(now.UnixNano())
	m.lastOut.Store(now.UnixNano())

	m.setState(types.ConnConnected, fmt.Sprintf("%s: %s", StatusConnected, proto), link.RemoteAddr())
	log.Info("上游已连接", "protocol", proto.String(), "server", link.RemoteAddr())

	m.handler.SessionStarted(sctx, proto)
	m.handler.HandleFrame(sctx, types.UpstreamSource(), first)

	err = m.readLoop(sctx, link)
	connectedFor := m.clock.Since(now)

	m.mu.Lock()
	reason := m.killReason
	m.link = nil
	m.proto = types.ProtocolUndefined
	m.endSession = nil
	m.mu.Unlock()

	m.setState(types.ConnDisconnected, StatusNoConnection)
	m.handler.SessionEnded(ctx)

	if reason != "" && ctx.Err() == nil {
		err = fmt.Errorf("%w: %s", ErrSessionKilled, reason)
	}
	return connectedFor, err
}

// detect 在识别窗口内等待第一帧可识别的横幅
func (m *Manager) detect(ctx context.Context, link interfaces.Link) (types.Protocol, string, error) {
	wctx, cancel := m.clock.WithTimeout(ctx, m.cfg.DetectWindow)
	defer cancel()

	if probe := protocol.Probe(m.probeFor); probe != "" {
		if err := link.WriteFrame(wctx, probe); err != nil {
			return types.ProtocolUndefined, "", fmt.Errorf("probe: %w", err)
		}
		m.metrics.LogFrameOut(types.UpstreamSource())
	}

	for {
		frame, err := link.ReadFrame(wctx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(wctx.Err(), context.DeadlineExceeded) {
				m.rotateProbe()
				return types.ProtocolUndefined, "", protocol.ErrDetectTimeout
			}
			return types.ProtocolUndefined, "", err
		}
		m.metrics.LogFrameIn(types.UpstreamSource())

		if p := protocol.Detect(frame); p != types.ProtocolUndefined {
			m.probeFor = p
			return p, frame, nil
		}
		log.Debug("识别阶段忽略帧", "frame", frame)
	}
}

// rotateProbe 识别超时后下一次改用另一种协议的探测方式
func (m *Manager) rotateProbe() {
	if m.probeFor == types.ProtocolDCCEx {
		m.probeFor = types.ProtocolWiThrottle
	} else {
		m.probeFor = types.ProtocolDCCEx
	}
}

// readLoop 把上游帧逐个交给分发器，直到出错或会话结束
func (m *Manager) readLoop(ctx context.Context, link interfaces.Link) error {
	for {
		frame, err := link.ReadFrame(ctx)
		if err != nil {
			return err
		}
		m.lastIn.Store(m.clock.Now().UnixNano())
		m.metrics.LogFrameIn(types.UpstreamSource())
		m.handler.HandleFrame(ctx, types.UpstreamSource(), frame)
	}
}
