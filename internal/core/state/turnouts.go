package state

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// Turnouts 道岔表
type Turnouts struct {
	guard *Guard

	items  map[string]*types.Turnout
	order  []string
	labels map[types.TurnoutState]string
}

// DefaultTurnoutLabels 默认状态标签
func DefaultTurnoutLabels() map[types.TurnoutState]string {
	return map[types.TurnoutState]string{
		types.TurnoutUnknown:      "Unknown",
		types.TurnoutClosed:       "Closed",
		types.TurnoutThrown:       "Thrown",
		types.TurnoutInconsistent: "Inconsistent",
	}
}

// NewTurnouts 创建道岔表
func NewTurnouts(lockTimeout time.Duration) *Turnouts {
	return &Turnouts{
		guard:  NewGuard(RankTurnout, lockTimeout),
		items:  make(map[string]*types.Turnout),
		labels: DefaultTurnoutLabels(),
	}
}

// Guard 返回 turnout 锁
func (t *Turnouts) Guard() *Guard { return t.guard }

// Define 定义或更新道岔，返回是否有变化
func (t *Turnouts) Define(ctx context.Context, to types.Turnout) (bool, error) {
	if to.SysName == "" {
		return false, fmt.Errorf("%w: empty name", types.ErrUnknownTurnout)
	}
	if !to.State.Valid() {
		to.State = types.TurnoutUnknown
	}
	var changed bool
	err := t.guard.Do(ctx, func() {
		changed = t.defineLocked(to)
	})
	return changed, err
}

func (t *Turnouts) defineLocked(to types.Turnout) bool {
	if to.UserName == "" {
		to.UserName = to.SysName
	}
	cur, ok := t.items[to.SysName]
	if !ok {
		c := to
		t.items[to.SysName] = &c
		t.order = append(t.order, to.SysName)
		return true
	}
	if *cur == to {
		return false
	}
	*cur = to
	return true
}

// DefineAll 用列表替换道岔表
func (t *Turnouts) DefineAll(ctx context.Context, list []types.Turnout) error {
	return t.guard.Do(ctx, func() {
		t.clearLocked()
		for _, to := range list {
			if to.SysName == "" {
				continue
			}
			if !to.State.Valid() {
				to.State = types.TurnoutUnknown
			}
			t.defineLocked(to)
		}
	})
}

// SetState 设置道岔状态
func (t *Turnouts) SetState(ctx context.Context, sysName string, state types.TurnoutState) (types.Turnout, bool, error) {
	var (
		out     types.Turnout
		changed bool
		fail    error
	)
	err := t.guard.Do(ctx, func() {
		out, changed, fail = t.setStateLocked(sysName, state)
	})
	if err != nil {
		return types.Turnout{}, false, err
	}
	return out, changed, fail
}

func (t *Turnouts) setStateLocked(sysName string, state types.TurnoutState) (types.Turnout, bool, error) {
	if !state.Valid() {
		return types.Turnout{}, false, fmt.Errorf("%w: %d", types.ErrInvalidTurnoutState, state)
	}
	cur, ok := t.items[sysName]
	if !ok {
		return types.Turnout{}, false, fmt.Errorf("%w: %s", types.ErrUnknownTurnout, sysName)
	}
	if cur.State == state {
		return *cur, false, nil
	}
	cur.State = state
	return *cur, true, nil
}

// Get 返回道岔
func (t *Turnouts) Get(ctx context.Context, sysName string) (types.Turnout, bool, error) {
	var (
		out types.Turnout
		ok  bool
	)
	err := t.guard.Do(ctx, func() {
		var cur *types.Turnout
		if cur, ok = t.items[sysName]; ok {
			out = *cur
		}
	})
	return out, ok, err
}

// Find 按系统名或显示名查找
func (t *Turnouts) Find(ctx context.Context, name string) (types.Turnout, bool, error) {
	var (
		out types.Turnout
		ok  bool
	)
	err := t.guard.Do(ctx, func() {
		if cur, hit := t.items[name]; hit {
			out, ok = *cur, true
			return
		}
		for _, sys := range t.order {
			if cur := t.items[sys]; cur.UserName == name {
				out, ok = *cur, true
				return
			}
		}
	})
	return out, ok, err
}

// List 按加入顺序返回所有道岔
func (t *Turnouts) List(ctx context.Context) ([]types.Turnout, error) {
	var out []types.Turnout
	err := t.guard.Do(ctx, func() {
		out = t.listLocked()
	})
	return out, err
}

func (t *Turnouts) listLocked() []types.Turnout {
	out := make([]types.Turnout, 0, len(t.order))
	for _, sys := range t.order {
		out = append(out, *t.items[sys])
	}
	return out
}

// Remove 删除道岔
func (t *Turnouts) Remove(ctx context.Context, sysName string) (bool, error) {
	var removed bool
	err := t.guard.Do(ctx, func() {
		if _, ok := t.items[sysName]; !ok {
			return
		}
		delete(t.items, sysName)
		for i, s := range t.order {
			if s == sysName {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
		removed = true
	})
	return removed, err
}

// Clear 清空道岔表
func (t *Turnouts) Clear(ctx context.Context) error {
	return t.guard.Do(ctx, t.clearLocked)
}

func (t *Turnouts) clearLocked() {
	t.items = make(map[string]*types.Turnout)
	t.order = nil
}

// SetLabels 设置状态标签（来自 WiThrottle PTT）
func (t *Turnouts) SetLabels(ctx context.Context, labels map[types.TurnoutState]string) error {
	return t.guard.Do(ctx, func() {
		for k, v := range labels {
			t.labels[k] = v
		}
	})
}

// Labels 返回状态标签副本
func (t *Turnouts) Labels(ctx context.Context) (map[types.TurnoutState]string, error) {
	out := make(map[types.TurnoutState]string)
	err := t.guard.Do(ctx, func() {
		for k, v := range t.labels {
			out[k] = v
		}
	})
	return out, err
}
