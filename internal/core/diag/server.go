package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/transport"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
)

var log = logger.Logger("diag")

// Server 诊断监听服务
//
// 每个会话既接收诊断行，也可输入控制台命令；会话数有上限。
type Server struct {
	cfg     Config
	console *Console
	bus     *eventbus.Bus

	mu       sync.Mutex
	sessions map[*session]struct{}
	listener net.Listener

	group   *errgroup.Group
	sessWG  sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool
}

type session struct {
	link      *transport.FrameLink
	lines     chan string
	flushed   chan struct{}
	closeOnce sync.Once
}

// flushMarker 写协程遇到它时表示此前排队的行均已写出
const flushMarker = ""

// flushTimeout quit 后等待已排队行写出的上限
const flushTimeout = time.Second

func (s *session) close() {
	s.closeOnce.Do(func() { _ = s.link.Close() })
}

// New 创建诊断服务
func New(cfg Config, console *Console, bus *eventbus.Bus) *Server {
	cfg.Validate()
	return &Server{
		cfg:      cfg,
		console:  console,
		bus:      bus,
		sessions: make(map[*session]struct{}),
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 开始监听
func (s *Server) Start(_ context.Context) error {
	if !s.cfg.Enabled {
		log.Info("诊断服务未启用")
		return nil
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: diag listen %s: %v", config.ErrStartupConflict, s.cfg.ListenAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.listener = ln
	s.group = g
	s.cancel = cancel
	s.mu.Unlock()

	g.Go(func() error { return s.acceptLoop(gctx, ln) })
	if s.bus != nil {
		g.Go(func() error { return s.pumpLoop(gctx) })
	}

	log.Info("诊断服务已启动", "addr", ln.Addr().String(), "maxSessions", s.cfg.MaxSessions)
	return nil
}

// Stop 关闭监听与全部会话
func (s *Server) Stop(_ context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	ln := s.listener
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	g := s.group
	s.mu.Unlock()

	var err error
	if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = multierr.Append(err, cerr)
	}
	for _, sess := range sessions {
		sess.close()
	}
	s.cancel()
	err = multierr.Append(err, g.Wait())
	s.sessWG.Wait()

	log.Info("诊断服务已停止")
	return err
}

// Addr 返回实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Sessions 当前会话数
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ============================================================================
//                              会话
// ============================================================================

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("接受诊断连接失败", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		s.admit(ctx, conn)
	}
}

func (s *Server) admit(ctx context.Context, conn net.Conn) {
	link := transport.NewConnLink(conn, s.cfg.WriteTimeout)

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		log.Info("诊断会话已满，拒绝连接", "remote", link.RemoteAddr())
		_ = link.WriteFrame(ctx, TooManySessionsText)
		_ = link.Close()
		return
	}
	sess := &session{
		link:    link,
		lines:   make(chan string, s.cfg.SessionQueue),
		flushed: make(chan struct{}),
	}
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	log.Info("诊断会话已接入", "remote", link.RemoteAddr())

	s.sessWG.Add(2)
	go func() {
		defer s.sessWG.Done()
		s.writeLoop(ctx, sess)
	}()
	go func() {
		defer s.sessWG.Done()
		s.readLoop(ctx, sess)
		sess.close()

		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		log.Info("诊断会话已断开", "remote", link.RemoteAddr())
	}()
}

// readLoop 逐行执行控制台命令
func (s *Server) readLoop(ctx context.Context, sess *session) {
	sess.deliver("miniThrottle console, type help for commands")
	for {
		line, err := sess.link.ReadFrame(ctx)
		if err != nil {
			return
		}
		if s.console == nil {
			continue
		}
		out, err := s.console.Execute(ctx, line)
		sess.deliver(out...)
		if errors.Is(err, ErrQuit) {
			sess.deliver("bye")
			sess.flush()
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, sess *session) {
	for {
		select {
		case line := <-sess.lines:
			if line == flushMarker {
				close(sess.flushed)
				return
			}
			if err := sess.link.WriteFrame(ctx, line); err != nil {
				sess.close()
				return
			}
		case <-sess.link.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// deliver 非阻塞入队，缓冲满时丢弃
func (sess *session) deliver(lines ...string) {
	for _, l := range lines {
		if l == flushMarker {
			continue
		}
		select {
		case sess.lines <- l:
		default:
			return
		}
	}
}

// flush 等待已排队的行写出
func (sess *session) flush() {
	timer := time.NewTimer(flushTimeout)
	defer timer.Stop()
	select {
	case sess.lines <- flushMarker:
	case <-timer.C:
		return
	}
	select {
	case <-sess.flushed:
	case <-sess.link.Done():
	case <-timer.C:
	}
}

// ============================================================================
//                              诊断行分发
// ============================================================================

// pumpLoop 把诊断队列中的行分发给所有会话
func (s *Server) pumpLoop(ctx context.Context) error {
	for {
		line, ok, err := s.bus.Diag.Receive(ctx, s.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, eventbus.ErrClosed) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}
		s.mu.Lock()
		for sess := range s.sessions {
			sess.deliver(line)
		}
		s.mu.Unlock()
	}
}
