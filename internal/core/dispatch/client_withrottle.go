package dispatch

import (
	"context"
	"fmt"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              中继 WiThrottle 客户端（服务器角色）
// ============================================================================

// clientWiThrottle 处理中继 WiThrottle 客户端发来的一帧
func (d *Dispatcher) clientWiThrottle(ctx context.Context, slot int, frame string) error {
	m, err := withrottle.Parse(frame)
	if err != nil {
		return err
	}

	switch m.Kind {
	case withrottle.KindName:
		if err := d.tables.Relay.SetNodeName(ctx, slot, m.Text); err != nil {
			return err
		}
		d.reply(slot, withrottle.HeartbeatInterval(d.cfg.Relay.KeepAlive))

	case withrottle.KindHardwareID:
		log.Debug("中继客户端设备标识", "slot", slot, "id", m.Text)

	case withrottle.KindHeartbeat, withrottle.KindHeartbeatOn, withrottle.KindHeartbeatOff:
		// 活动时间已由中继服务刷新

	case withrottle.KindQuit:
		if f := d.getFanout(); f != nil {
			f.Disconnect(slot)
		}

	case withrottle.KindPower:
		on := m.Power == types.PowerOn
		if m.Power == types.PowerUnknown {
			on = d.Power() != types.PowerOn
		}
		return d.replyError(slot, d.SetPower(ctx, on))

	case withrottle.KindTurnout:
		switch m.Action {
		case 'C':
			return d.replyError(slot, d.SetTurnout(ctx, m.Name, types.TurnoutClosed))
		case 'T':
			return d.replyError(slot, d.SetTurnout(ctx, m.Name, types.TurnoutThrown))
		case '2':
			return d.replyError(slot, d.ToggleTurnout(ctx, m.Name))
		}
		return fmt.Errorf("%w: turnout action %q", types.ErrMalformedFrame, m.Action)

	case withrottle.KindRoute:
		if m.Action != '2' {
			return fmt.Errorf("%w: route action %q", types.ErrMalformedFrame, m.Action)
		}
		return d.replyError(slot, d.RouteInitiate(ctx, m.Name))

	case withrottle.KindThrottle:
		return d.clientThrottle(ctx, slot, m.Throttle)

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownFrame, frame)
	}
	return nil
}

// clientTargets 返回动作作用的机车
func (d *Dispatcher) clientTargets(slot int, a withrottle.ThrottleAction) ([]uint16, error) {
	if a.All() {
		if f := d.getFanout(); f != nil {
			return f.Bound(slot, a.Throttle), nil
		}
		return nil, nil
	}
	id, _, err := a.Address()
	if err != nil {
		return nil, err
	}
	return []uint16{id}, nil
}

// clientThrottle 处理客户端的手柄动作
func (d *Dispatcher) clientThrottle(ctx context.Context, slot int, a withrottle.ThrottleAction) error {
	switch a.Op {
	case withrottle.OpAdd, withrottle.OpSteal:
		id, kind, err := a.Address()
		if err != nil {
			return err
		}
		return d.clientAcquire(ctx, slot, a.Throttle, id, kind, a.Op == withrottle.OpSteal)

	case withrottle.OpRemove:
		ids, err := d.clientTargets(slot, a)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := d.clientRelease(ctx, slot, a.Throttle, id); err != nil {
				return err
			}
		}
		return nil

	case withrottle.OpAction:
		ids, err := d.clientTargets(slot, a)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := d.clientAction(ctx, slot, id, a); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: throttle op %q", types.ErrUnknownFrame, a.Op)
}

// clientAcquire 客户端占用机车
//
// 机车已被其他客户端或本地手柄占用时回复抢占请求，客户端以 'S' 确认后才转移。
func (d *Dispatcher) clientAcquire(ctx context.Context, slot int, th byte, id uint16, kind types.AddressKind, steal bool) error {
	l, err := d.tables.Roster.Ensure(ctx, id, kind)
	if err != nil {
		return err
	}
	prev, bound := d.letters.client(id)
	mine := bound && prev.slot == slot
	held := (bound && !mine) || l.Owned
	if held && !steal {
		d.reply(slot, withrottle.StealNeeded(th, l.Address()))
		return nil
	}

	switch d.UpstreamProtocol() {
	case types.ProtocolWiThrottle:
		if _, up := d.letters.upstreamLetter(id); !up || steal {
			letter := relayLetter(slot)
			req := withrottle.Acquire(letter, l.Address())
			if steal {
				req = withrottle.Steal(letter, l.Address())
			}
			if err := d.sendUpstream(ctx, req); err != nil {
				return d.replyError(slot, err)
			}
			d.letters.setUpstream(id, letter)
		}
	case types.ProtocolDCCEx:
		// DCC-Ex 无占用概念
	default:
		return d.replyError(slot, types.ErrNotConnected)
	}

	f := d.getFanout()
	if bound && !mine {
		d.reply(prev.slot, withrottle.LocoRemoved(prev.letter, l.Address()))
		if f != nil {
			f.Unbind(prev.slot, prev.letter, id)
		}
	}
	if mine && prev.letter != th && f != nil {
		f.Unbind(slot, prev.letter, id)
	}

	l, changed, err := d.tables.Roster.Update(ctx, id, func(l *types.Locomotive) {
		l.RelaySlot = slot
		if steal && l.Owned {
			l.Owned = false
			l.Throttle = types.NoThrottle
		}
		l.Steal = false
		l.StealBy = types.NoThrottle
	})
	if err != nil {
		return err
	}
	d.letters.bindClient(id, slot, th)
	if f != nil {
		f.Bind(slot, th, id)
	}
	d.reply(slot, withrottle.LocoState(th, l)...)
	if changed {
		d.publish(types.Change{Kind: types.ChangeLoco, Source: types.RelaySource(slot), Loco: l})
	}
	return nil
}

// clientRelease 客户端释放机车
func (d *Dispatcher) clientRelease(ctx context.Context, slot int, th byte, id uint16) error {
	if f := d.getFanout(); f != nil {
		f.Unbind(slot, th, id)
	}
	if !d.letters.unbindClient(id, slot) {
		return nil
	}
	l, changed, err := d.tables.Roster.Update(ctx, id, func(l *types.Locomotive) {
		if l.RelaySlot == slot {
			l.RelaySlot = types.NoSlot
		}
	})
	if err != nil {
		return err
	}
	if !l.Owned {
		if err := d.releaseUpstream(ctx, l); err != nil {
			log.Debug("上游释放机车失败", "loco", id, "err", err)
		}
	}
	d.reply(slot, withrottle.LocoRemoved(th, l.Address()))
	if changed {
		d.publish(types.Change{Kind: types.ChangeLoco, Source: types.RelaySource(slot), Loco: l})
	}
	return nil
}

// clientAction 客户端对机车的操作
func (d *Dispatcher) clientAction(ctx context.Context, slot int, id uint16, a withrottle.ThrottleAction) error {
	b, ok := d.letters.client(id)
	if !ok || b.slot != slot {
		return fmt.Errorf("%w: loco %d slot %d", types.ErrNotOwned, id, slot)
	}
	src := types.RelaySource(slot)
	letter := relayLetter(slot)

	var cmd locoCommand
	op, arg := a.Command()
	switch op {
	case withrottle.CmdVelocity:
		speed, err := a.Speed()
		if err != nil {
			return err
		}
		cmd = speedCommand(speed)
	case withrottle.CmdDirection:
		dir, err := a.Direction()
		if err != nil {
			return err
		}
		cmd = directionCommand(dir)
	case withrottle.CmdFunction:
		fn, pressed, err := a.Function()
		if err != nil {
			return err
		}
		l, _, err := d.tables.Roster.Get(ctx, id)
		if err != nil {
			return err
		}
		on, act := pressTarget(l, fn, pressed)
		if !act {
			return nil
		}
		cmd = functionCommand(fn, on)
	case withrottle.CmdForceFunction:
		fn, on, err := a.Function()
		if err != nil {
			return err
		}
		cmd = functionCommand(fn, on)
	case withrottle.CmdEStop:
		cmd = speedCommand(-1)
	case withrottle.CmdIdle:
		cmd = speedCommand(0)
	case withrottle.CmdQuery:
		l, _, err := d.tables.Roster.Get(ctx, id)
		if err != nil {
			return err
		}
		switch arg {
		case "V":
			d.reply(slot, withrottle.LocoSpeed(a.Throttle, l))
		case "R":
			d.reply(slot, withrottle.LocoDirection(a.Throttle, l))
		}
		return nil
	case withrottle.CmdRelease, withrottle.CmdDispatch:
		return d.clientRelease(ctx, slot, a.Throttle, id)
	default:
		// 动量、速度级等设置不影响共享表
		return nil
	}

	_, err := d.drive(ctx, src, letter, id, cmd)
	return d.replyError(slot, err)
}
