package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/internal/core/transport"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("relay")

// 确保实现了接口
var _ interfaces.Fanout = (*Server)(nil)

// refuseTimeout 拒绝帧的写超时
const refuseTimeout = time.Second

// Handler 处理客户端帧与会话事件（由分发器实现）
type Handler interface {
	interfaces.FrameHandler

	// Greeting 新客户端的欢迎帧
	Greeting(ctx context.Context, proto types.Protocol) []string

	// ClientGone 客户端断开后释放其占用的资源
	ClientGone(ctx context.Context, slot int)
}

// Server 中继扇出服务
type Server struct {
	cfg     Config
	table   *state.RelayTable
	handler Handler
	metrics metrics.Reporter
	clock   clock.Clock

	mu       sync.RWMutex
	sessions map[int]*session
	listener net.Listener

	sessWG  sync.WaitGroup
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	closed  atomic.Bool
}

// New 创建中继服务
func New(cfg Config, table *state.RelayTable, handler Handler, reporter metrics.Reporter, clk clock.Clock) *Server {
	cfg.Validate()
	if clk == nil {
		clk = clock.New()
	}
	if reporter == nil {
		reporter = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		table:    table,
		handler:  handler,
		metrics:  reporter,
		clock:    clk,
		sessions: make(map[int]*session),
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 开始监听
//
// 监听失败属于启动期资源冲突，返回 config.ErrStartupConflict。
func (s *Server) Start(_ context.Context) error {
	if !s.cfg.Enabled() {
		log.Info("中继未启用")
		return nil
	}
	if s.closed.Load() {
		return ErrServiceClosed
	}
	if s.handler == nil {
		return ErrNoHandler
	}
	if s.running.Load() {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: relay listen %s: %v", config.ErrStartupConflict, s.cfg.ListenAddr, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(s.ctx)
	s.mu.Lock()
	s.listener = ln
	s.group = g
	s.mu.Unlock()
	s.running.Store(true)

	g.Go(func() error { return s.acceptLoop(gctx, ln) })
	g.Go(func() error { return s.reapLoop(gctx) })

	log.Info("中继服务已启动",
		"addr", ln.Addr().String(),
		"protocol", s.cfg.Protocol.String(),
		"maxClients", s.table.Capacity(),
		"timeout", s.cfg.Timeout)
	return nil
}

// Stop 关闭监听与全部客户端，之后不能再次 Start
func (s *Server) Stop(_ context.Context) error {
	s.closed.Store(true)
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	ln := s.listener
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	g := s.group
	s.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, sess := range sessions {
		sess.close("server stopped")
	}
	s.cancel()
	if g != nil {
		err = multierr.Append(err, g.Wait())
	}
	s.sessWG.Wait()

	log.Info("中继服务已停止")
	return err
}

// Addr 返回实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ============================================================================
//                              接入
// ============================================================================

// acceptLoop 接受新连接，直到监听关闭
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("接受连接失败", "err", err)
			timer := s.clock.Timer(100 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}
		s.admit(ctx, conn)
	}
}

// admit 为新连接分配槽位，池满时拒绝
func (s *Server) admit(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	rc, err := s.table.Allocate(ctx, remote, s.cfg.Protocol, s.clock.Now())
	if err != nil {
		if errors.Is(err, types.ErrPoolFull) {
			s.metrics.LogRelayRefused()
			log.Info("中继槽位已满，拒绝客户端", "remote", remote)
			_ = conn.SetWriteDeadline(time.Now().Add(refuseTimeout))
			_, _ = conn.Write([]byte(refusal(s.cfg.Protocol) + "\n"))
		} else {
			log.Warn("分配中继槽位失败", "remote", remote, "err", err)
		}
		_ = conn.Close()
		return
	}

	sess := newSession(s, rc, transport.NewConnLink(conn, s.cfg.WriteTimeout))

	s.mu.Lock()
	s.sessions[rc.Slot] = sess
	s.mu.Unlock()
	s.reportClients(ctx)

	log.Info("中继客户端已接入", "slot", rc.Slot, "remote", remote, "session", rc.SessionID)

	s.sessWG.Add(2)
	go func() {
		defer s.sessWG.Done()
		sess.writeLoop(ctx)
	}()
	go func() {
		defer s.sessWG.Done()
		sess.enqueue(s.handler.Greeting(ctx, s.cfg.Protocol)...)
		sess.readLoop(ctx)
		s.finish(sess)
	}()
}

// finish 会话结束后的清理：释放机车，再释放槽位
func (s *Server) finish(sess *session) {
	s.mu.Lock()
	if s.sessions[sess.slot] == sess {
		delete(s.sessions, sess.slot)
	}
	s.mu.Unlock()

	// 清理不随服务 ctx 取消
	ctx := context.Background()
	s.handler.ClientGone(ctx, sess.slot)
	if err := s.table.Release(ctx, sess.slot); err != nil {
		log.Warn("释放中继槽位失败", "slot", sess.slot, "err", err)
	}
	s.reportClients(ctx)

	log.Info("中继客户端已断开", "slot", sess.slot, "reason", sess.reason)
}

// reapLoop 定期断开静默超时的客户端
func (s *Server) reapLoop(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}

// reap 断开一次超时检查中发现的静默客户端
func (s *Server) reap(ctx context.Context) {
	slots, err := s.table.Expired(ctx, s.clock.Now(), s.cfg.Timeout)
	if err != nil {
		log.Debug("超时检查跳过", "err", err)
		return
	}
	for _, slot := range slots {
		if sess := s.session(slot); sess != nil {
			log.Info("中继客户端静默超时", "slot", slot, "timeout", s.cfg.Timeout)
			sess.close("liveness timeout")
		}
	}
}

func (s *Server) touch(ctx context.Context, slot, in, out int) {
	if err := s.table.Touch(ctx, slot, in, out, s.clock.Now()); err != nil {
		log.Debug("更新客户端活动时间失败", "slot", slot, "err", err)
	}
}

func (s *Server) reportClients(ctx context.Context) {
	n, err := s.table.Count(ctx)
	if err != nil {
		return
	}
	hw, err := s.table.HighWater(ctx)
	if err != nil {
		return
	}
	s.metrics.SetRelayClients(n, hw)
}

func (s *Server) session(slot int) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[slot]
}

// snapshot 按槽位排序的会话列表
func (s *Server) snapshot() []*session {
	s.mu.RLock()
	out := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].slot < out[j].slot })
	return out
}

// ============================================================================
//                              Fanout 接口
// ============================================================================

// Active 中继服务是否在运行
func (s *Server) Active() bool { return s.running.Load() }

// Protocol 客户端协议
func (s *Server) Protocol() types.Protocol { return s.cfg.Protocol }

// Publish 把变更编码后推送给全部客户端
//
// 机车变更不回送给发起它的客户端，分发器已直接应答。
func (s *Server) Publish(c types.Change) {
	if !s.Active() {
		return
	}
	for _, sess := range s.snapshot() {
		if isLocoChange(c.Kind) && c.Source.Kind == types.SourceRelay && c.Source.Slot == sess.slot {
			continue
		}
		sess.enqueue(encodeChange(s.cfg.Protocol, c, sess.letters)...)
	}
}

func isLocoChange(k types.ChangeKind) bool {
	return k == types.ChangeLoco || k == types.ChangeFunction
}

// SendTo 向指定槽位直接发送帧
func (s *Server) SendTo(slot int, frames ...string) {
	if sess := s.session(slot); sess != nil {
		sess.enqueue(frames...)
	}
}

// Bind 记录客户端用哪个手柄字母占用了机车
func (s *Server) Bind(slot int, throttle byte, id uint16) {
	if sess := s.session(slot); sess != nil {
		sess.bind(throttle, id)
	}
}

// Unbind 解除绑定
func (s *Server) Unbind(slot int, throttle byte, id uint16) {
	if sess := s.session(slot); sess != nil {
		sess.unbind(throttle, id)
	}
}

// Bound 返回客户端某手柄字母下占用的机车
func (s *Server) Bound(slot int, throttle byte) []uint16 {
	if sess := s.session(slot); sess != nil {
		return sess.boundIDs(throttle)
	}
	return nil
}

// Disconnect 断开指定槽位
func (s *Server) Disconnect(slot int) {
	if sess := s.session(slot); sess != nil {
		sess.close("disconnect")
	}
}
