package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              本地手柄
// ============================================================================

// localSource 本地手柄 th 的来源标记
func localSource(th int) types.Source {
	return types.Source{Kind: types.SourceLocal, Slot: th}
}

func (d *Dispatcher) checkThrottle(th int) error {
	if th < 0 || th >= d.cfg.Throttle.Count || th >= maxLetters {
		return fmt.Errorf("%w: %d", types.ErrInvalidThrottle, th)
	}
	return nil
}

// consist 返回手柄占用的机车（按占用顺序，第一台为头车）
func (d *Dispatcher) consist(ctx context.Context, th int) ([]types.Locomotive, error) {
	if err := d.checkThrottle(th); err != nil {
		return nil, err
	}
	return d.tables.Roster.OwnedBy(ctx, th)
}

// AcquireLoco 本地手柄占用机车
//
// 机车已被其他本地手柄占用时返回 types.ErrStealPending，机车被标记为等待抢占，
// 占用关系不变，需调用 ConfirmSteal 完成。
func (d *Dispatcher) AcquireLoco(ctx context.Context, th int, id uint16) (types.Locomotive, error) {
	if err := d.checkThrottle(th); err != nil {
		return types.Locomotive{}, err
	}
	l, err := d.tables.Roster.Acquire(ctx, id, th)
	if errors.Is(err, types.ErrStealPending) {
		d.publish(types.Change{Kind: types.ChangeLoco, Source: localSource(th), Loco: l})
		return l, err
	}
	if err != nil {
		return l, err
	}

	// 上游未连接时只记录本地占用，首次驱动时再向上游申请
	if d.UpstreamProtocol() == types.ProtocolWiThrottle {
		if _, held := d.letters.upstreamLetter(id); !held {
			letter := localLetter(th)
			if err := d.sendUpstream(ctx, withrottle.Acquire(letter, l.Address())); err != nil {
				log.Warn("上游占用机车失败", "loco", id, "err", err)
			} else {
				d.letters.setUpstream(id, letter)
			}
		}
	}
	d.publish(types.Change{Kind: types.ChangeLoco, Source: localSource(th), Loco: l})
	return l, nil
}

// ConfirmSteal 确认抢占，机车转给手柄 th 并向上游发送抢占请求
func (d *Dispatcher) ConfirmSteal(ctx context.Context, th int, id uint16) (types.Locomotive, error) {
	if err := d.checkThrottle(th); err != nil {
		return types.Locomotive{}, err
	}
	cur, ok, err := d.tables.Roster.Get(ctx, id)
	if err != nil {
		return types.Locomotive{}, err
	}
	if !ok {
		return types.Locomotive{}, fmt.Errorf("%w: %d", types.ErrUnknownLoco, id)
	}
	if d.UpstreamProtocol() == types.ProtocolWiThrottle {
		letter := localLetter(th)
		if err := d.sendUpstream(ctx, withrottle.Steal(letter, cur.Address())); err != nil {
			return cur, err
		}
		d.letters.setUpstream(id, letter)
	}
	l, err := d.tables.Roster.ConfirmSteal(ctx, id, th)
	if err != nil {
		return l, err
	}
	d.publish(types.Change{Kind: types.ChangeLoco, Source: localSource(th), Loco: l})
	return l, nil
}

// ReleaseLoco 本地手柄释放机车
func (d *Dispatcher) ReleaseLoco(ctx context.Context, th int, id uint16) error {
	if err := d.checkThrottle(th); err != nil {
		return err
	}
	l, err := d.tables.Roster.Release(ctx, id, th)
	if err != nil {
		return err
	}
	if l.RelaySlot == types.NoSlot {
		if err := d.releaseUpstream(ctx, l); err != nil {
			log.Debug("上游释放机车失败", "loco", id, "err", err)
		}
	}
	d.publish(types.Change{Kind: types.ChangeLoco, Source: localSource(th), Loco: l})
	return nil
}

// SetSpeed 设置手柄下全部机车的速度，-1 为紧急停车
func (d *Dispatcher) SetSpeed(ctx context.Context, th, speed int) error {
	if speed < -1 || speed > types.MaxSpeed {
		return fmt.Errorf("%w: speed %d", types.ErrMalformedFrame, speed)
	}
	return d.driveConsist(ctx, th, func(int, types.Locomotive) (locoCommand, bool) {
		return speedCommand(speed), true
	})
}

// SetDirection 设置手柄下全部机车的方向
func (d *Dispatcher) SetDirection(ctx context.Context, th int, dir types.Direction) error {
	if dir != types.DirForward && dir != types.DirReverse {
		return nil
	}
	return d.driveConsist(ctx, th, func(int, types.Locomotive) (locoCommand, bool) {
		return directionCommand(dir), true
	})
}

// SetFunction 设置功能状态，仅头车生效的功能只作用于第一台机车
func (d *Dispatcher) SetFunction(ctx context.Context, th, fn int, on bool) error {
	if fn < 0 || fn >= types.MaxFunctions {
		return fmt.Errorf("%w: %d", types.ErrInvalidFunction, fn)
	}
	return d.driveConsist(ctx, th, func(i int, l types.Locomotive) (locoCommand, bool) {
		if i > 0 && l.LeadOnly&(1<<uint(fn)) != 0 {
			return locoCommand{}, false
		}
		return functionCommand(fn, on), true
	})
}

// PressFunction 功能键按下或松开
func (d *Dispatcher) PressFunction(ctx context.Context, th, fn int, pressed bool) error {
	if fn < 0 || fn >= types.MaxFunctions {
		return fmt.Errorf("%w: %d", types.ErrInvalidFunction, fn)
	}
	return d.driveConsist(ctx, th, func(i int, l types.Locomotive) (locoCommand, bool) {
		if i > 0 && l.LeadOnly&(1<<uint(fn)) != 0 {
			return locoCommand{}, false
		}
		on, act := pressTarget(l, fn, pressed)
		return functionCommand(fn, on), act
	})
}

// ToggleDirection 手柄方向取反（以头车为准）
func (d *Dispatcher) ToggleDirection(ctx context.Context, th int) error {
	locos, err := d.consist(ctx, th)
	if err != nil || len(locos) == 0 {
		return err
	}
	dir := types.DirReverse
	if locos[0].Direction == types.DirReverse {
		dir = types.DirForward
	}
	return d.SetDirection(ctx, th, dir)
}

// driveConsist 对手柄编组逐台执行，单台失败不影响其余机车
func (d *Dispatcher) driveConsist(ctx context.Context, th int, pick func(int, types.Locomotive) (locoCommand, bool)) error {
	locos, err := d.consist(ctx, th)
	if err != nil {
		return err
	}
	var errs error
	for i, l := range locos {
		cmd, ok := pick(i, l)
		if !ok {
			continue
		}
		if _, err := d.drive(ctx, localSource(th), localLetter(th), l.ID, cmd); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("loco %d: %w", l.ID, err))
		}
	}
	return errs
}

// EStopAll 全部机车紧急停车
func (d *Dispatcher) EStopAll(ctx context.Context) error {
	var errs error
	switch d.UpstreamProtocol() {
	case types.ProtocolDCCEx:
		errs = d.sendUpstream(ctx, dccex.EStopAll())
	case types.ProtocolWiThrottle:
		for id, letter := range d.letters.upstreamAll() {
			l, ok, err := d.tables.Roster.Get(ctx, id)
			if err != nil || !ok {
				continue
			}
			errs = multierr.Append(errs, d.sendUpstream(ctx, withrottle.EStop(letter, l.Address())))
		}
	default:
		return types.ErrNotConnected
	}

	locos, err := d.tables.Roster.List(ctx)
	if err != nil {
		return multierr.Append(errs, err)
	}
	for _, l := range locos {
		if l.Speed <= 0 {
			continue
		}
		nl, changed, err := d.tables.Roster.Update(ctx, l.ID, func(l *types.Locomotive) { l.Speed = 0 })
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			d.publish(types.Change{Kind: types.ChangeLoco, Source: types.LocalSource(), Loco: nl})
		}
	}
	d.bus.Diagf("emergency stop")
	return errs
}

// ============================================================================
//                              电源
// ============================================================================

// SetPower 轨道上电或断电
//
// 电源状态以上游回显为准，这里只发送请求。
func (d *Dispatcher) SetPower(ctx context.Context, on bool) error {
	switch d.UpstreamProtocol() {
	case types.ProtocolWiThrottle:
		p := types.PowerOff
		if on {
			p = types.PowerOn
		}
		return d.sendUpstream(ctx, withrottle.Power(p))
	case types.ProtocolDCCEx:
		if on {
			return d.sendUpstream(ctx, dccex.PowerOn(d.cfg.Upstream.TrackPower))
		}
		return d.sendUpstream(ctx, dccex.PowerOff())
	}
	return types.ErrNotConnected
}

// TogglePower 切换轨道电源
func (d *Dispatcher) TogglePower(ctx context.Context) error {
	return d.SetPower(ctx, d.Power() != types.PowerOn)
}

// setPowerState 记录上游回显的电源状态
func (d *Dispatcher) setPowerState(p types.PowerState) {
	if types.PowerState(d.power.Swap(int32(p))) == p {
		return
	}
	d.publish(types.Change{Kind: types.ChangePower, Source: types.UpstreamSource(), Power: p})
}

// ============================================================================
//                              道岔
// ============================================================================

// SetTurnout 设置道岔
//
// name 可以是系统名或显示名。道岔状态以上游回显为准。
func (d *Dispatcher) SetTurnout(ctx context.Context, name string, st types.TurnoutState) error {
	if st != types.TurnoutClosed && st != types.TurnoutThrown {
		return fmt.Errorf("%w: %d", types.ErrInvalidTurnoutState, st)
	}
	to, ok, err := d.tables.Turnouts.Find(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownTurnout, name)
	}
	return d.sendTurnout(ctx, to.SysName, st)
}

// ToggleTurnout 切换道岔
func (d *Dispatcher) ToggleTurnout(ctx context.Context, name string) error {
	to, ok, err := d.tables.Turnouts.Find(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownTurnout, name)
	}
	st := types.TurnoutThrown
	if to.State == types.TurnoutThrown {
		st = types.TurnoutClosed
	}
	return d.sendTurnout(ctx, to.SysName, st)
}

func (d *Dispatcher) sendTurnout(ctx context.Context, sysName string, st types.TurnoutState) error {
	switch d.UpstreamProtocol() {
	case types.ProtocolWiThrottle:
		action := byte('C')
		if st == types.TurnoutThrown {
			action = 'T'
		}
		return d.sendUpstream(ctx, withrottle.Turnout(action, sysName))
	case types.ProtocolDCCEx:
		id, ok := dccex.NumericID(sysName)
		if !ok {
			return fmt.Errorf("%w: %s has no numeric id", types.ErrUnknownTurnout, sysName)
		}
		return d.sendUpstream(ctx, dccex.Turnout(id, st == types.TurnoutThrown))
	}
	return types.ErrNotConnected
}
