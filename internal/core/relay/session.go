package relay

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/transport"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// session 一个中继客户端会话
type session struct {
	srv  *Server
	slot int
	id   string
	link *transport.FrameLink

	out     chan string
	limiter *rate.Limiter

	// sendMu 保证一次 enqueue 的多帧连续入队
	sendMu sync.Mutex

	mu    sync.Mutex
	bound map[byte][]uint16

	closeOnce sync.Once
	reason    string
}

func newSession(srv *Server, rc types.RelayConnection, link *transport.FrameLink) *session {
	return &session{
		srv:     srv,
		slot:    rc.Slot,
		id:      rc.SessionID,
		link:    link,
		out:     make(chan string, srv.cfg.OutQueue),
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.InRate), srv.cfg.InBurst),
		bound:   make(map[byte][]uint16),
	}
}

func (s *session) source() types.Source { return types.RelaySource(s.slot) }

// close 关闭连接，读协程随后完成清理
func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		_ = s.link.Close()
	})
}

// enqueue 非阻塞入队，队列满时断开该客户端
func (s *session) enqueue(frames ...string) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for _, f := range frames {
		if f == "" {
			continue
		}
		select {
		case s.out <- f:
		case <-s.link.Done():
			return
		default:
			s.srv.metrics.LogDropped(metrics.DropQueueFull)
			log.Warn("客户端出站队列已满，断开", "slot", s.slot, "queue", cap(s.out))
			s.close(ErrQueueFull.Error())
			return
		}
	}
}

// readLoop 把客户端帧交给分发器，直到连接关闭
func (s *session) readLoop(ctx context.Context) {
	for {
		frame, err := s.link.ReadFrame(ctx)
		if err != nil {
			s.close(err.Error())
			return
		}
		s.srv.touch(ctx, s.slot, 1, 0)
		s.srv.metrics.LogFrameIn(s.source())

		if !s.limiter.Allow() {
			s.srv.metrics.LogDropped(metrics.DropRateLimit)
			log.Debug("客户端超速，丢弃帧", "slot", s.slot, "frame", frame)
			continue
		}
		s.srv.handler.HandleFrame(ctx, s.source(), frame)
	}
}

// writeLoop 依次写出出站队列中的帧
func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case f := <-s.out:
			if err := s.link.WriteFrame(ctx, f); err != nil {
				log.Debug("客户端写入失败，断开", "slot", s.slot, "err", err)
				s.close(err.Error())
				return
			}
			s.srv.touch(ctx, s.slot, 0, 1)
			s.srv.metrics.LogFrameOut(s.source())
		case <-s.link.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// ============================================================================
//                              手柄字母绑定
// ============================================================================

func (s *session) bind(th byte, id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.bound[th] {
		if v == id {
			return
		}
	}
	s.bound[th] = append(s.bound[th], id)
}

func (s *session) unbind(th byte, id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.bound[th]
	for i, v := range ids {
		if v == id {
			s.bound[th] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.bound[th]) == 0 {
		delete(s.bound, th)
	}
}

func (s *session) boundIDs(th byte) []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.bound[th]...)
}

// letters 客户端占用该机车所用的字母（升序）
func (s *session) letters(id uint16) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for th, ids := range s.bound {
		for _, v := range ids {
			if v == id {
				out = append(out, th)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
