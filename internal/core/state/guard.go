package state

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// Rank 锁的全局顺序，多锁操作必须按 Rank 从小到大获取
type Rank int

const (
	RankLoco Rank = iota
	RankTurnout
	RankRoute
	RankRelay
	RankLink
	RankConsole
)

// String 返回锁名
func (r Rank) String() string {
	switch r {
	case RankLoco:
		return "loco"
	case RankTurnout:
		return "turnout"
	case RankRoute:
		return "route"
	case RankRelay:
		return "relay"
	case RankLink:
		return "link"
	case RankConsole:
		return "console"
	default:
		return "unknown"
	}
}

// Guard 带超时的互斥锁
//
// 获取超时返回 types.ErrLockTimeout，调用方应放弃本次操作并记录诊断。
type Guard struct {
	rank    Rank
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewGuard 创建锁
func NewGuard(rank Rank, timeout time.Duration) *Guard {
	return &Guard{
		rank:    rank,
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
	}
}

// Rank 返回锁顺序
func (g *Guard) Rank() Rank { return g.rank }

// Acquire 获取锁，最多等待配置的超时
func (g *Guard) Acquire(ctx context.Context) error {
	if g.sem.TryAcquire(1) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		log.Warn("获取锁超时", "lock", g.rank.String(), "timeout", g.timeout)
		return fmt.Errorf("%w: %s", types.ErrLockTimeout, g.rank)
	}
	return nil
}

// Release 释放锁
func (g *Guard) Release() {
	g.sem.Release(1)
}

// Do 在持锁状态下执行 fn
func (g *Guard) Do(ctx context.Context, fn func()) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	fn()
	return nil
}

// AcquireAll 按 Rank 顺序获取多把锁
//
// 任何一把超时都会释放已获取的锁并返回错误。成功时返回的 release
// 按相反顺序释放。
func AcquireAll(ctx context.Context, guards ...*Guard) (release func(), err error) {
	ordered := make([]*Guard, len(guards))
	copy(ordered, guards)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].rank < ordered[j].rank })

	held := make([]*Guard, 0, len(ordered))
	unwind := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release()
		}
	}

	for _, g := range ordered {
		if err := g.Acquire(ctx); err != nil {
			unwind()
			return nil, err
		}
		held = append(held, g)
	}
	return unwind, nil
}
