package state

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// Routes 进路表
type Routes struct {
	guard *Guard

	items map[string]*types.Route
	order []string
}

// NewRoutes 创建进路表
func NewRoutes(lockTimeout time.Duration) *Routes {
	return &Routes{
		guard: NewGuard(RankRoute, lockTimeout),
		items: make(map[string]*types.Route),
	}
}

// Guard 返回 route 锁
func (r *Routes) Guard() *Guard { return r.guard }

func checkRoute(rt types.Route) error {
	if rt.SysName == "" {
		return fmt.Errorf("%w: empty name", types.ErrUnknownRoute)
	}
	if len(rt.Steps) > types.MaxRouteSteps {
		return fmt.Errorf("%w: %d > %d", types.ErrTooManySteps, len(rt.Steps), types.MaxRouteSteps)
	}
	for _, s := range rt.Steps {
		if s.State != types.TurnoutClosed && s.State != types.TurnoutThrown {
			return fmt.Errorf("%w: step %s", types.ErrInvalidTurnoutState, s.Turnout)
		}
	}
	return nil
}

// Define 定义或替换进路
//
// 超过 25 步的进路被拒绝（ErrTooManySteps）。
func (r *Routes) Define(ctx context.Context, rt types.Route) error {
	if err := checkRoute(rt); err != nil {
		return err
	}
	return r.guard.Do(ctx, func() {
		r.defineLocked(rt)
	})
}

func (r *Routes) defineLocked(rt types.Route) {
	if rt.UserName == "" {
		rt.UserName = rt.SysName
	}
	c := rt.Clone()
	if _, ok := r.items[rt.SysName]; !ok {
		r.order = append(r.order, rt.SysName)
	}
	r.items[rt.SysName] = &c
}

// ReplaceUpstream 用上游列表替换进路表，本地定义的进路保留
//
// 合并在同一临界区内完成；同名时本地进路优先，非法项被跳过。
func (r *Routes) ReplaceUpstream(ctx context.Context, upstream []types.Route) error {
	return r.guard.Do(ctx, func() {
		var local []types.Route
		for _, sys := range r.order {
			if rt := r.items[sys]; rt.Local() {
				local = append(local, rt.Clone())
			}
		}
		r.clearLocked()
		for _, rt := range upstream {
			if err := checkRoute(rt); err != nil {
				log.Warn("忽略非法进路", "route", rt.SysName, "error", err)
				continue
			}
			r.defineLocked(rt)
		}
		for _, rt := range local {
			r.defineLocked(rt)
		}
	})
}

// SetState 设置进路状态
func (r *Routes) SetState(ctx context.Context, sysName string, state types.RouteState) (types.Route, bool, error) {
	var (
		out     types.Route
		changed bool
		fail    error
	)
	err := r.guard.Do(ctx, func() {
		cur, ok := r.items[sysName]
		if !ok {
			fail = fmt.Errorf("%w: %s", types.ErrUnknownRoute, sysName)
			return
		}
		changed = cur.State != state
		cur.State = state
		out = cur.Clone()
	})
	if err != nil {
		return types.Route{}, false, err
	}
	return out, changed, fail
}

// Begin 把本地进路置为 in-progress
//
// 进路已在执行时返回 ErrRouteBusy，检查与置位在同一临界区内完成。
func (r *Routes) Begin(ctx context.Context, sysName string) (types.Route, error) {
	var (
		out  types.Route
		fail error
	)
	err := r.guard.Do(ctx, func() {
		cur, ok := r.items[sysName]
		if !ok {
			fail = fmt.Errorf("%w: %s", types.ErrUnknownRoute, sysName)
			return
		}
		if cur.State == types.RouteInProgress {
			fail = fmt.Errorf("%w: %s", types.ErrRouteBusy, sysName)
			return
		}
		cur.State = types.RouteInProgress
		out = cur.Clone()
	})
	if err != nil {
		return types.Route{}, err
	}
	return out, fail
}

// Get 返回进路
func (r *Routes) Get(ctx context.Context, sysName string) (types.Route, bool, error) {
	var (
		out types.Route
		ok  bool
	)
	err := r.guard.Do(ctx, func() {
		var cur *types.Route
		if cur, ok = r.items[sysName]; ok {
			out = cur.Clone()
		}
	})
	return out, ok, err
}

// Find 按系统名或显示名查找
func (r *Routes) Find(ctx context.Context, name string) (types.Route, bool, error) {
	var (
		out types.Route
		ok  bool
	)
	err := r.guard.Do(ctx, func() {
		if cur, hit := r.items[name]; hit {
			out, ok = cur.Clone(), true
			return
		}
		for _, sys := range r.order {
			if cur := r.items[sys]; cur.UserName == name {
				out, ok = cur.Clone(), true
				return
			}
		}
	})
	return out, ok, err
}

// List 按加入顺序返回所有进路
func (r *Routes) List(ctx context.Context) ([]types.Route, error) {
	var out []types.Route
	err := r.guard.Do(ctx, func() {
		out = r.listLocked()
	})
	return out, err
}

func (r *Routes) listLocked() []types.Route {
	out := make([]types.Route, 0, len(r.order))
	for _, sys := range r.order {
		out = append(out, r.items[sys].Clone())
	}
	return out
}

// Remove 删除进路
func (r *Routes) Remove(ctx context.Context, sysName string) (bool, error) {
	var removed bool
	err := r.guard.Do(ctx, func() {
		if _, ok := r.items[sysName]; !ok {
			return
		}
		delete(r.items, sysName)
		for i, s := range r.order {
			if s == sysName {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		removed = true
	})
	return removed, err
}

// Clear 清空进路表
func (r *Routes) Clear(ctx context.Context) error {
	return r.guard.Do(ctx, r.clearLocked)
}

func (r *Routes) clearLocked() {
	r.items = make(map[string]*types.Route)
	r.order = nil
}

// invalidateLocked 已确认进路中该道岔的目标状态与实际不符时回到空闲
//
// 需要同时持有 route 锁；返回状态发生变化的进路。
func (r *Routes) invalidateLocked(turnout string, state types.TurnoutState) []types.Route {
	var changed []types.Route
	for _, sys := range r.order {
		rt := r.items[sys]
		if rt.State != types.RouteConfirmed {
			continue
		}
		for _, s := range rt.Steps {
			if s.Turnout == turnout && s.State != state {
				rt.State = types.RouteIdle
				changed = append(changed, rt.Clone())
				break
			}
		}
	}
	return changed
}

