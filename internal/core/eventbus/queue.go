package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 队列已关闭
	ErrClosed = errors.New("eventbus: queue closed")
)

// ============================================================================
// Queue 实现
// ============================================================================

// Queue 固定容量的类型化队列
type Queue[T any] struct {
	name string
	ch   chan T

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	emitted   atomic.Int64
	dropCount atomic.Int64
}

// NewQueue 创建队列
func NewQueue[T any](name string, capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		name: name,
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Name 返回队列名称
func (q *Queue[T]) Name() string { return q.name }

// Cap 返回容量
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Len 返回当前排队数
func (q *Queue[T]) Len() int { return len(q.ch) }

// Emitted 返回成功入队总数
func (q *Queue[T]) Emitted() int64 { return q.emitted.Load() }

// Dropped 返回因队列满被丢弃的总数
func (q *Queue[T]) Dropped() int64 { return q.dropCount.Load() }

// Emit 非阻塞入队
//
// 队列满或已关闭时返回 false。
func (q *Queue[T]) Emit(v T) bool {
	if q.closed.Load() {
		return false
	}
	select {
	case <-q.done:
		return false
	case q.ch <- v:
		q.emitted.Add(1)
		return true
	default:
		dropped := q.dropCount.Add(1)

		// 每丢弃 100 个事件警告一次，避免日志泛滥
		if dropped%100 == 1 {
			log.Warn("慢消费者检测",
				"queue", q.name,
				"dropped", dropped,
				"reason", "queue full")
		}
		return false
	}
}

// Receive 在限定时间内取出一个事件
//
// timeout <= 0 表示只受 ctx 约束。超时返回 ok=false, err=nil。
func (q *Queue[T]) Receive(ctx context.Context, timeout time.Duration) (v T, ok bool, err error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	// 已排队的事件优先于关闭信号
	select {
	case v = <-q.ch:
		return v, true, nil
	default:
	}

	select {
	case v = <-q.ch:
		return v, true, nil
	case <-timer:
		return v, false, nil
	case <-q.done:
		return v, false, ErrClosed
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// C 返回只读通道，供 select 使用
func (q *Queue[T]) C() <-chan T { return q.ch }

// Done 队列关闭时关闭
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

// Drain 丢弃所有排队事件并返回数量
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Close 关闭队列
//
// 关闭后 Emit 返回 false，阻塞中的 Receive 返回 ErrClosed。
// 数据通道本身不关闭，避免与并发 Emit 竞争。
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}
