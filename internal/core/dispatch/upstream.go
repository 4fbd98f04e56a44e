package dispatch

import (
	"context"
	"errors"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              上游帧的公共处理
// ============================================================================

// applyTurnout 记录上游报告的道岔状态
//
// 未知道岔先以占位定义加入表中。因道岔变化而失效的进路一并广播。
func (d *Dispatcher) applyTurnout(ctx context.Context, sysName string, st types.TurnoutState) error {
	to, changed, invalid, err := d.tables.ApplyTurnoutState(ctx, sysName, st)
	if errors.Is(err, types.ErrUnknownTurnout) {
		if _, err := d.tables.Turnouts.Define(ctx, types.Turnout{SysName: sysName, State: types.TurnoutUnknown}); err != nil {
			return err
		}
		to, changed, invalid, err = d.tables.ApplyTurnoutState(ctx, sysName, st)
		changed = true
	}
	if err != nil {
		return err
	}
	if changed {
		d.publish(types.Change{Kind: types.ChangeTurnout, Source: types.UpstreamSource(), Turnout: to})
	}
	for _, rt := range invalid {
		d.publish(types.Change{Kind: types.ChangeRoute, Source: types.UpstreamSource(), Route: rt})
	}
	return nil
}

// replaceRoutes 用上游列表替换进路表，本地定义的进路保留
func (d *Dispatcher) replaceRoutes(ctx context.Context, upstream []types.Route) error {
	if err := d.tables.Routes.ReplaceUpstream(ctx, upstream); err != nil {
		return err
	}
	return d.publishRouteList(ctx, types.UpstreamSource())
}

func (d *Dispatcher) publishRoster(ctx context.Context, src types.Source) error {
	locos, err := d.tables.Roster.List(ctx)
	if err != nil {
		return err
	}
	d.publish(types.Change{Kind: types.ChangeRoster, Source: src, Locos: locos})
	return nil
}

func (d *Dispatcher) publishTurnoutList(ctx context.Context, src types.Source) error {
	list, err := d.tables.Turnouts.List(ctx)
	if err != nil {
		return err
	}
	d.publish(types.Change{Kind: types.ChangeTurnoutList, Source: src, Turnouts: list})
	return nil
}

func (d *Dispatcher) publishRouteList(ctx context.Context, src types.Source) error {
	list, err := d.tables.Routes.List(ctx)
	if err != nil {
		return err
	}
	d.publish(types.Change{Kind: types.ChangeRouteList, Source: src, Routes: list})
	return nil
}

// observeClock 从属模式下记录上游快钟
func (d *Dispatcher) observeClock(t types.FastClockTime) {
	c := d.getClock()
	if c == nil || c.Authoritative() {
		return
	}
	c.Observe(t)
	d.publish(types.Change{Kind: types.ChangeFastClock, Source: types.UpstreamSource(), Clock: t})
}

// publishLocoDiff 按实际变化的字段广播机车更新
//
// 速度或方向变化产生一条 ChangeLoco，每个变化的功能各产生一条 ChangeFunction。
func (d *Dispatcher) publishLocoDiff(src types.Source, before, after types.Locomotive) {
	if before.Speed != after.Speed || before.Direction != after.Direction ||
		before.Owned != after.Owned || before.Steal != after.Steal ||
		before.RelaySlot != after.RelaySlot || before.Name != after.Name {
		d.publish(types.Change{Kind: types.ChangeLoco, Source: src, Loco: after})
	}
	diff := before.Functions ^ after.Functions
	for fn := 0; fn < types.MaxFunctions && diff != 0; fn++ {
		if diff&(1<<uint(fn)) != 0 {
			d.publish(types.Change{Kind: types.ChangeFunction, Source: src, Loco: after, Function: fn})
			diff &^= 1 << uint(fn)
		}
	}
}

// upsertLoco 修改机车并按差异广播
func (d *Dispatcher) upsertLoco(ctx context.Context, src types.Source, id uint16, fn func(*types.Locomotive)) (types.Locomotive, error) {
	var before types.Locomotive
	after, changed, err := d.tables.Roster.Upsert(ctx, id, func(l *types.Locomotive) {
		before = l.Clone()
		fn(l)
	})
	if err != nil || !changed {
		return after, err
	}
	d.publishLocoDiff(src, before, after)
	return after, nil
}
