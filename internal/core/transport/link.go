package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

var log = logger.Logger("transport")

// 确保实现了接口
var _ interfaces.Link = (*FrameLink)(nil)

// DefaultWriteTimeout 默认写超时
const DefaultWriteTimeout = 5 * time.Second

// deadliner 支持写超时的底层连接（net.Conn）
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// FrameLink 基于 io.ReadWriteCloser 的帧链路
//
// 读取由后台协程完成，ReadFrame 可以被 ctx 取消；
// 写入串行化，每帧追加换行。
type FrameLink struct {
	rwc          io.ReadWriteCloser
	remote       string
	writeTimeout time.Duration

	frames chan string
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	readErr atomic.Value // error

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
}

// NewFrameLink 创建链路并启动读取协程
func NewFrameLink(rwc io.ReadWriteCloser, remote string, writeTimeout time.Duration) *FrameLink {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	l := &FrameLink{
		rwc:          rwc,
		remote:       remote,
		writeTimeout: writeTimeout,
		frames:       make(chan string, 64),
		done:         make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// NewConnLink 在 net.Conn 上创建链路
func NewConnLink(conn net.Conn, writeTimeout time.Duration) *FrameLink {
	return NewFrameLink(conn, conn.RemoteAddr().String(), writeTimeout)
}

func (l *FrameLink) readLoop() {
	defer close(l.frames)

	sc := bufio.NewScanner(l.rwc)
	sc.Buffer(make([]byte, 0, 2048), 4*MaxFrameSize)
	sc.Split(SplitFrames)

	for sc.Scan() {
		tok := sc.Text()
		if tok == "" {
			continue
		}
		l.framesIn.Add(1)
		select {
		case l.frames <- tok:
		case <-l.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	l.readErr.Store(err)
}

// ReadFrame 读取下一帧
func (l *FrameLink) ReadFrame(ctx context.Context) (string, error) {
	select {
	case f, ok := <-l.frames:
		if !ok {
			return "", l.err()
		}
		return f, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return "", ErrLinkClosed
	}
}

func (l *FrameLink) err() error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	if v := l.readErr.Load(); v != nil {
		if err, ok := v.(error); ok {
			if errors.Is(err, net.ErrClosed) {
				return ErrLinkClosed
			}
			return err
		}
	}
	return ErrLinkClosed
}

// WriteFrame 写出一帧
func (l *FrameLink) WriteFrame(ctx context.Context, frame string) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if d, ok := l.rwc.(deadliner); ok {
		deadline := time.Now().Add(l.writeTimeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		_ = d.SetWriteDeadline(deadline)
	}

	if _, err := io.WriteString(l.rwc, frame+"\n"); err != nil {
		return fmt.Errorf("write %s: %w", l.remote, err)
	}
	l.framesOut.Add(1)
	return nil
}

// RemoteAddr 返回对端描述
func (l *FrameLink) RemoteAddr() string { return l.remote }

// Done 链路关闭后关闭
func (l *FrameLink) Done() <-chan struct{} { return l.done }

// Stats 返回收发帧数
func (l *FrameLink) Stats() (in, out uint64) {
	return l.framesIn.Load(), l.framesOut.Load()
}

// Close 关闭链路
func (l *FrameLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.closeErr = l.rwc.Close()
		log.Debug("链路已关闭", "remote", l.remote)
	})
	return l.closeErr
}
