package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              上游 WiThrottle（客户端角色）
// ============================================================================

// upstreamWiThrottle 处理 WiThrottle 服务器发来的一帧
func (d *Dispatcher) upstreamWiThrottle(ctx context.Context, frame string) error {
	m, err := withrottle.Parse(frame)
	if err != nil {
		return err
	}
	src := types.UpstreamSource()

	switch m.Kind {
	case withrottle.KindVersion:
		log.Debug("WiThrottle 服务器版本", "version", m.Text)
	case withrottle.KindServerType:
		if d.ServerDesc() == "" {
			d.serverDesc.Store(m.Text)
		}
	case withrottle.KindServerDesc:
		d.serverDesc.Store(m.Text)

	case withrottle.KindRoster:
		locos := make([]types.Locomotive, 0, len(m.Roster))
		for _, e := range m.Roster {
			locos = append(locos, types.Locomotive{ID: e.ID, Name: e.Name, Kind: e.Kind})
		}
		if err := d.tables.Roster.Load(ctx, locos); err != nil {
			return err
		}
		return d.publishRoster(ctx, src)

	case withrottle.KindPower:
		d.setPowerState(m.Power)

	case withrottle.KindTurnoutLabels:
		labels := make(map[types.TurnoutState]string, len(m.Labels))
		for code, label := range m.Labels {
			labels[withrottle.TurnoutStateFromCode(code)] = label
		}
		return d.tables.Turnouts.SetLabels(ctx, labels)

	case withrottle.KindTurnoutList:
		list := make([]types.Turnout, 0, len(m.Items))
		for _, it := range m.Items {
			list = append(list, types.Turnout{
				SysName:  it.SysName,
				UserName: it.UserName,
				State:    withrottle.TurnoutStateFromCode(it.State),
			})
		}
		if err := d.tables.Turnouts.DefineAll(ctx, list); err != nil {
			return err
		}
		return d.publishTurnoutList(ctx, src)

	case withrottle.KindTurnout:
		return d.applyTurnout(ctx, m.Name, withrottle.TurnoutStateFromCode(int(m.Action-'0')))

	case withrottle.KindRouteLabels:
		// 标签固定，无需记录

	case withrottle.KindRouteList:
		list := make([]types.Route, 0, len(m.Items))
		for _, it := range m.Items {
			list = append(list, types.Route{
				SysName:  it.SysName,
				UserName: it.UserName,
				State:    upstreamRouteState(it.State),
			})
		}
		return d.replaceRoutes(ctx, list)

	case withrottle.KindRoute:
		rt, changed, err := d.tables.Routes.SetState(ctx, m.Name, upstreamRouteState(int(m.Action-'0')))
		if err != nil {
			return err
		}
		if changed {
			d.publish(types.Change{Kind: types.ChangeRoute, Source: src, Route: rt})
		}

	case withrottle.KindFastClock:
		d.observeClock(m.Clock)

	case withrottle.KindHeartbeatInterval:
		if h := d.getHeartbeat(); h != nil && m.Value > 0 {
			h.SetInterval(time.Duration(m.Value) * time.Second)
		}
		if m.Value > 0 {
			return d.sendUpstream(ctx, withrottle.HeartbeatOn())
		}

	case withrottle.KindAlert, withrottle.KindInfo:
		log.Info("指令站消息", "text", m.Text)
		d.bus.Diagf("station: %s", m.Text)

	case withrottle.KindThrottle:
		return d.upstreamThrottle(ctx, m.Throttle)

	case withrottle.KindWebPort, withrottle.KindConsist, withrottle.KindHeartbeat,
		withrottle.KindHeartbeatOn, withrottle.KindHeartbeatOff:
		// 无需处理

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownFrame, frame)
	}
	return nil
}

// upstreamRouteState 上游进路状态码，0 视为空闲
func upstreamRouteState(code int) types.RouteState {
	if code == 0 {
		return types.RouteIdle
	}
	return withrottle.RouteStateFromCode(code)
}

// upstreamThrottle 处理服务器对手柄动作的回显
func (d *Dispatcher) upstreamThrottle(ctx context.Context, a withrottle.ThrottleAction) error {
	src := types.UpstreamSource()
	owner := letterOwner(a.Throttle)

	if a.Op == withrottle.OpAction && a.All() {
		var errs []error
		for _, id := range d.letters.upstreamIDs(a.Throttle) {
			errs = append(errs, d.upstreamLocoAction(ctx, src, id, a))
		}
		return errors.Join(errs...)
	}

	id, kind, err := a.Address()
	if err != nil {
		return err
	}

	switch a.Op {
	case withrottle.OpAdd:
		d.letters.setUpstream(id, a.Throttle)
		_, err := d.upsertLoco(ctx, src, id, func(l *types.Locomotive) { l.Kind = kind })
		return err

	case withrottle.OpRemove:
		if letter, ok := d.letters.upstreamLetter(id); ok && letter == a.Throttle {
			d.letters.dropUpstream(id)
		}
		if owner.Kind == types.SourceLocal {
			l, err := d.tables.Roster.Release(ctx, id, owner.Slot)
			if errors.Is(err, types.ErrNotOwned) || errors.Is(err, types.ErrUnknownLoco) {
				return nil
			}
			if err != nil {
				return err
			}
			d.publish(types.Change{Kind: types.ChangeLoco, Source: src, Loco: l})
		}
		return nil

	case withrottle.OpSteal:
		switch owner.Kind {
		case types.SourceLocal:
			l, err := d.tables.Roster.MarkSteal(ctx, id, owner.Slot)
			if err != nil {
				return err
			}
			d.bus.Diagf("loco %d needs steal on throttle %d", id, owner.Slot)
			d.publish(types.Change{Kind: types.ChangeLoco, Source: src, Loco: l})
		case types.SourceRelay:
			letter := withrottle.DefaultThrottle
			if b, ok := d.letters.client(id); ok && b.slot == owner.Slot {
				letter = b.letter
			}
			d.reply(owner.Slot, withrottle.StealNeeded(letter, types.FormatAddress(id, kind)))
		}
		return nil

	case withrottle.OpAction:
		return d.upstreamLocoAction(ctx, src, id, a)

	case withrottle.OpLabels:
		labels := a.Labels()
		_, err := d.upsertLoco(ctx, src, id, func(l *types.Locomotive) {
			l.FunctionLabels = labels
		})
		return err
	}
	return nil
}

// upstreamLocoAction 记录服务器报告的机车状态
func (d *Dispatcher) upstreamLocoAction(ctx context.Context, src types.Source, id uint16, a withrottle.ThrottleAction) error {
	cmd, _ := a.Command()
	switch cmd {
	case withrottle.CmdVelocity:
		speed, err := a.Speed()
		if err != nil {
			return err
		}
		_, err = d.upsertLoco(ctx, src, id, func(l *types.Locomotive) {
			if speed < 0 {
				speed = 0
			}
			l.Speed = int16(speed)
		})
		return err

	case withrottle.CmdDirection:
		dir, err := a.Direction()
		if err != nil {
			return err
		}
		_, err = d.upsertLoco(ctx, src, id, func(l *types.Locomotive) { l.Direction = dir })
		return err

	case withrottle.CmdFunction, withrottle.CmdForceFunction:
		fn, on, err := a.Function()
		if err != nil {
			return err
		}
		_, err = d.upsertLoco(ctx, src, id, func(l *types.Locomotive) {
			if on {
				l.Functions |= 1 << uint(fn)
			} else {
				l.Functions &^= 1 << uint(fn)
			}
		})
		return err
	}
	return nil
}
