package dispatch

import (
	"context"
	"fmt"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              进路
// ============================================================================

// RouteInitiate 激活进路
//
// 没有步骤的进路交给上游指令站执行；本地进路置为 in-progress 后在后台按步骤执行，
// 进路已在执行时返回 types.ErrRouteBusy。
func (d *Dispatcher) RouteInitiate(ctx context.Context, name string) error {
	rt, err := d.findRoute(ctx, name)
	if err != nil {
		return err
	}
	if !rt.Local() {
		return d.sendRoute(ctx, rt.SysName)
	}

	rt, err = d.beginRoute(ctx, rt.SysName)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runRoute(d.ctx, rt)
	}()
	return nil
}

// ExecuteRoute 同步执行本地进路，返回最终状态
func (d *Dispatcher) ExecuteRoute(ctx context.Context, name string) (types.RouteState, error) {
	rt, err := d.findRoute(ctx, name)
	if err != nil {
		return types.RouteIdle, err
	}
	if !rt.Local() {
		return rt.State, fmt.Errorf("%w: %s is executed by the command station", types.ErrUnsupported, rt.SysName)
	}
	rt, err = d.beginRoute(ctx, rt.SysName)
	if err != nil {
		return types.RouteIdle, err
	}
	return d.runRoute(ctx, rt), nil
}

func (d *Dispatcher) findRoute(ctx context.Context, name string) (types.Route, error) {
	rt, ok, err := d.tables.Routes.Find(ctx, name)
	if err != nil {
		return types.Route{}, err
	}
	if !ok {
		return types.Route{}, fmt.Errorf("%w: %s", types.ErrUnknownRoute, name)
	}
	return rt, nil
}

func (d *Dispatcher) beginRoute(ctx context.Context, sysName string) (types.Route, error) {
	rt, err := d.tables.Routes.Begin(ctx, sysName)
	if err != nil {
		return rt, err
	}
	d.publish(types.Change{Kind: types.ChangeRoute, Source: types.LocalSource(), Route: rt})
	return rt, nil
}

// runRoute 按顺序执行进路步骤
//
// 步骤之间间隔 StepDelay；某步失败时按 AbortOnError 决定放弃或继续。
// 全部步骤成功为 confirmed，否则为 failed。
func (d *Dispatcher) runRoute(ctx context.Context, rt types.Route) types.RouteState {
	delay := d.cfg.Route.StepDelay
	failed := false

steps:
	for i, step := range rt.Steps {
		if i > 0 && delay > 0 {
			select {
			case <-d.clock.After(delay):
			case <-ctx.Done():
				failed = true
				break steps
			}
		}
		if err := d.SetTurnout(ctx, step.Turnout, step.State); err != nil {
			failed = true
			log.Warn("进路步骤失败", "route", rt.SysName, "step", i, "turnout", step.Turnout, "err", err)
			d.bus.Diagf("route %s step %d (%s) failed: %v", rt.SysName, i, step.Turnout, err)
			if d.cfg.Route.AbortOnError {
				break
			}
		}
	}

	final := types.RouteConfirmed
	if failed {
		final = types.RouteFailed
	}

	// 取消后仍需把进路从 in-progress 中释放
	out, changed, err := d.tables.Routes.SetState(context.WithoutCancel(ctx), rt.SysName, final)
	if err != nil {
		log.Warn("记录进路结果失败", "route", rt.SysName, "err", err)
	} else if changed {
		d.publish(types.Change{Kind: types.ChangeRoute, Source: types.LocalSource(), Route: out})
	}
	d.metrics.LogRoute(final)
	log.Debug("进路执行结束", "route", rt.SysName, "state", final.String())
	return final
}

// sendRoute 请求上游执行进路
func (d *Dispatcher) sendRoute(ctx context.Context, sysName string) error {
	switch d.UpstreamProtocol() {
	case types.ProtocolWiThrottle:
		return d.sendUpstream(ctx, withrottle.Route(sysName))
	case types.ProtocolDCCEx:
		id, ok := dccex.NumericID(sysName)
		if !ok {
			return fmt.Errorf("%w: %s has no numeric id", types.ErrUnknownRoute, sysName)
		}
		return d.sendUpstream(ctx, dccex.StartRoute(id))
	}
	return types.ErrNotConnected
}
