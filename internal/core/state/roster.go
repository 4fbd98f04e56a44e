package state

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// RosterConfig 机车表配置
type RosterConfig struct {
	LockTimeout  time.Duration
	MaxConsist   int
	LatchDefault uint32
	LeadDefault  uint32
}

// Roster 机车表
//
// 所有读写都在 loco 锁内完成，对外只返回快照副本。
type Roster struct {
	guard *Guard
	cfg   RosterConfig

	locos map[uint16]*types.Locomotive
	order []uint16
}

// NewRoster 创建机车表
func NewRoster(cfg RosterConfig) *Roster {
	return &Roster{
		guard: NewGuard(RankLoco, cfg.LockTimeout),
		cfg:   cfg,
		locos: make(map[uint16]*types.Locomotive),
	}
}

// Guard 返回 loco 锁（跨表操作使用）
func (r *Roster) Guard() *Guard { return r.guard }

func (r *Roster) newLoco(id uint16, name string) *types.Locomotive {
	l := types.NewLocomotive(id, name)
	l.Latch = r.cfg.LatchDefault
	l.LeadOnly = r.cfg.LeadDefault
	return &l
}

// ensureLocked 需持有 loco 锁
func (r *Roster) ensureLocked(id uint16, kind types.AddressKind) *types.Locomotive {
	if l, ok := r.locos[id]; ok {
		return l
	}
	l := r.newLoco(id, "")
	if kind == types.AddrShort || kind == types.AddrLong {
		l.Kind = kind
	}
	r.locos[id] = l
	r.order = append(r.order, id)
	return l
}

// Ensure 返回机车，不存在时创建
func (r *Roster) Ensure(ctx context.Context, id uint16, kind types.AddressKind) (types.Locomotive, error) {
	if id > types.MaxLongAddress {
		return types.Locomotive{}, fmt.Errorf("%w: %d", types.ErrInvalidAddress, id)
	}
	var out types.Locomotive
	err := r.guard.Do(ctx, func() {
		out = r.ensureLocked(id, kind).Clone()
	})
	return out, err
}

// Load 用名册替换机车表
//
// 已存在机车的占用与运行状态保留，名称与功能定义以名册为准。
// 名册之外的已有机车排在名册之后，不会被删除。
func (r *Roster) Load(ctx context.Context, locos []types.Locomotive) error {
	return r.guard.Do(ctx, func() {
		next := make(map[uint16]*types.Locomotive, len(locos))
		order := make([]uint16, 0, len(locos))
		for _, in := range locos {
			if _, dup := next[in.ID]; dup {
				continue
			}
			l, ok := r.locos[in.ID]
			if !ok {
				l = r.newLoco(in.ID, in.Name)
			}
			if in.Name != "" {
				l.Name = in.Name
			}
			if in.Kind == types.AddrShort || in.Kind == types.AddrLong {
				l.Kind = in.Kind
			}
			if in.FunctionLabels != nil {
				l.FunctionLabels = append([]string(nil), in.FunctionLabels...)
				l.Latch = in.Latch
			}
			next[in.ID] = l
			order = append(order, in.ID)
		}
		// 不在名册中的机车原样保留，表项只由 Clear 删除
		for _, id := range r.order {
			if _, ok := next[id]; ok {
				continue
			}
			next[id] = r.locos[id]
			order = append(order, id)
		}
		r.locos = next
		r.order = order
	})
}

// Get 返回机车快照
func (r *Roster) Get(ctx context.Context, id uint16) (types.Locomotive, bool, error) {
	var (
		out types.Locomotive
		ok  bool
	)
	err := r.guard.Do(ctx, func() {
		var l *types.Locomotive
		if l, ok = r.locos[id]; ok {
			out = l.Clone()
		}
	})
	return out, ok, err
}

// List 按加入顺序返回所有机车
func (r *Roster) List(ctx context.Context) ([]types.Locomotive, error) {
	var out []types.Locomotive
	err := r.guard.Do(ctx, func() {
		out = r.listLocked()
	})
	return out, err
}

func (r *Roster) listLocked() []types.Locomotive {
	out := make([]types.Locomotive, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.locos[id].Clone())
	}
	return out
}

// Update 在锁内修改机车，返回修改后的快照与是否有变化
//
// fn 不得执行阻塞 I/O。速度被收敛到 -1..126，功能位图截断到 30 位。
func (r *Roster) Update(ctx context.Context, id uint16, fn func(*types.Locomotive)) (types.Locomotive, bool, error) {
	var (
		out     types.Locomotive
		changed bool
		missing bool
	)
	err := r.guard.Do(ctx, func() {
		l, ok := r.locos[id]
		if !ok {
			missing = true
			return
		}
		before := l.Clone()
		fn(l)
		normalize(l)
		out = l.Clone()
		changed = !before.SameState(out)
	})
	if err != nil {
		return types.Locomotive{}, false, err
	}
	if missing {
		return types.Locomotive{}, false, fmt.Errorf("%w: %d", types.ErrUnknownLoco, id)
	}
	return out, changed, nil
}

// Upsert 与 Update 相同，但机车不存在时先创建
func (r *Roster) Upsert(ctx context.Context, id uint16, fn func(*types.Locomotive)) (types.Locomotive, bool, error) {
	var (
		out     types.Locomotive
		changed bool
	)
	err := r.guard.Do(ctx, func() {
		_, existed := r.locos[id]
		l := r.ensureLocked(id, types.KindForAddress(id))
		before := l.Clone()
		fn(l)
		normalize(l)
		out = l.Clone()
		changed = !existed || !before.SameState(out)
	})
	return out, changed, err
}

func normalize(l *types.Locomotive) {
	if l.Speed < types.SpeedUnknown {
		l.Speed = types.SpeedUnknown
	}
	if l.Speed > types.MaxSpeed {
		l.Speed = types.MaxSpeed
	}
	const mask = uint32(1)<<types.MaxFunctions - 1
	l.Functions &= mask
	l.Latch &= mask
	l.LeadOnly &= mask
}

// ============================================================================
//                              占用
// ============================================================================

func (r *Roster) ownedCountLocked(throttle int) int {
	n := 0
	for _, l := range r.locos {
		if l.Owned && l.Throttle == throttle {
			n++
		}
	}
	return n
}

// Acquire 本地手柄占用机车
//
// 机车已被其他手柄占用时返回 ErrStealPending 并标记等待抢占；
// 手柄编组已满时返回 ErrConsistFull。
func (r *Roster) Acquire(ctx context.Context, id uint16, throttle int) (types.Locomotive, error) {
	var (
		out  types.Locomotive
		fail error
	)
	err := r.guard.Do(ctx, func() {
		l := r.ensureLocked(id, types.KindForAddress(id))
		if l.Owned && l.Throttle == throttle {
			out = l.Clone()
			return
		}
		if r.ownedCountLocked(throttle) >= r.cfg.MaxConsist {
			fail = types.ErrConsistFull
			return
		}
		if l.Owned {
			l.Steal = true
			l.StealBy = throttle
			out = l.Clone()
			fail = types.ErrStealPending
			return
		}
		l.Owned = true
		l.Throttle = throttle
		l.Steal = false
		l.StealBy = types.NoThrottle
		out = l.Clone()
	})
	if err != nil {
		return types.Locomotive{}, err
	}
	return out, fail
}

// MarkSteal 上游要求确认抢占
func (r *Roster) MarkSteal(ctx context.Context, id uint16, throttle int) (types.Locomotive, error) {
	l, _, err := r.Upsert(ctx, id, func(l *types.Locomotive) {
		l.Steal = true
		l.StealBy = throttle
	})
	return l, err
}

// ConfirmSteal 确认抢占，机车转给 throttle
func (r *Roster) ConfirmSteal(ctx context.Context, id uint16, throttle int) (types.Locomotive, error) {
	var (
		out  types.Locomotive
		fail error
	)
	err := r.guard.Do(ctx, func() {
		l, ok := r.locos[id]
		if !ok {
			fail = fmt.Errorf("%w: %d", types.ErrUnknownLoco, id)
			return
		}
		if r.ownedCountLocked(throttle) >= r.cfg.MaxConsist && !(l.Owned && l.Throttle == throttle) {
			fail = types.ErrConsistFull
			return
		}
		l.Owned = true
		l.Throttle = throttle
		l.Steal = false
		l.StealBy = types.NoThrottle
		out = l.Clone()
	})
	if err != nil {
		return types.Locomotive{}, err
	}
	return out, fail
}

// Release 手柄释放机车
func (r *Roster) Release(ctx context.Context, id uint16, throttle int) (types.Locomotive, error) {
	var (
		out  types.Locomotive
		fail error
	)
	err := r.guard.Do(ctx, func() {
		l, ok := r.locos[id]
		if !ok {
			fail = fmt.Errorf("%w: %d", types.ErrUnknownLoco, id)
			return
		}
		if !l.Owned || l.Throttle != throttle {
			fail = types.ErrNotOwned
			return
		}
		l.Owned = false
		l.Throttle = types.NoThrottle
		l.Steal = false
		l.StealBy = types.NoThrottle
		out = l.Clone()
	})
	if err != nil {
		return types.Locomotive{}, err
	}
	return out, fail
}

// OwnedBy 返回手柄占用的机车
func (r *Roster) OwnedBy(ctx context.Context, throttle int) ([]types.Locomotive, error) {
	var out []types.Locomotive
	err := r.guard.Do(ctx, func() {
		for _, id := range r.order {
			if l := r.locos[id]; l.Owned && l.Throttle == throttle {
				out = append(out, l.Clone())
			}
		}
	})
	return out, err
}

// ReleaseSlot 释放某个中继槽位占用的全部机车，返回被释放的机车
func (r *Roster) ReleaseSlot(ctx context.Context, slot int) ([]types.Locomotive, error) {
	var out []types.Locomotive
	err := r.guard.Do(ctx, func() {
		for _, id := range r.order {
			if l := r.locos[id]; l.RelaySlot == slot {
				l.RelaySlot = types.NoSlot
				out = append(out, l.Clone())
			}
		}
	})
	return out, err
}

// Reset 保留表项，清除运行状态与占用
func (r *Roster) Reset(ctx context.Context) error {
	return r.guard.Do(ctx, r.resetLocked)
}

func (r *Roster) resetLocked() {
	for _, l := range r.locos {
		l.Speed = types.SpeedUnknown
		l.Direction = types.DirForward
		l.Functions = 0
		l.Owned = false
		l.Throttle = types.NoThrottle
		l.Steal = false
		l.StealBy = types.NoThrottle
		l.RelaySlot = types.NoSlot
	}
}

// Clear 清空机车表
func (r *Roster) Clear(ctx context.Context) error {
	return r.guard.Do(ctx, r.clearLocked)
}

func (r *Roster) clearLocked() {
	r.locos = make(map[uint16]*types.Locomotive)
	r.order = nil
}

// Len 机车数量
func (r *Roster) Len(ctx context.Context) (int, error) {
	var n int
	err := r.guard.Do(ctx, func() { n = len(r.order) })
	return n, err
}
