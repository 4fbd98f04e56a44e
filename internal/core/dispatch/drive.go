package dispatch

import (
	"context"
	"fmt"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// locoCommand 对单台机车的一次操作
type locoCommand struct {
	hasSpeed bool
	speed    int // -1 为紧急停车

	dir types.Direction // DirUnchanged 表示不变

	fn   int // -1 表示不涉及功能
	fnOn bool
}

func speedCommand(speed int) locoCommand {
	return locoCommand{hasSpeed: true, speed: speed, dir: types.DirUnchanged, fn: -1}
}

func directionCommand(dir types.Direction) locoCommand {
	return locoCommand{dir: dir, fn: -1}
}

func throttleCommand(speed int, dir types.Direction) locoCommand {
	return locoCommand{hasSpeed: true, speed: speed, dir: dir, fn: -1}
}

func functionCommand(fn int, on bool) locoCommand {
	return locoCommand{dir: types.DirUnchanged, fn: fn, fnOn: on}
}

// apply 把操作写入机车记录（在 loco 锁内调用）
func (c locoCommand) apply(l *types.Locomotive) {
	if c.hasSpeed {
		if c.speed < 0 {
			l.Speed = 0
		} else {
			l.Speed = int16(c.speed)
		}
	}
	if c.dir == types.DirForward || c.dir == types.DirReverse {
		l.Direction = c.dir
	}
	if c.fn >= 0 && c.fn < types.MaxFunctions {
		if c.fnOn {
			l.Functions |= 1 << uint(c.fn)
		} else {
			l.Functions &^= 1 << uint(c.fn)
		}
	}
}

// changeKind 操作对应的变更类型
func (c locoCommand) changeKind() types.ChangeKind {
	if c.fn >= 0 && !c.hasSpeed && c.dir == types.DirUnchanged {
		return types.ChangeFunction
	}
	return types.ChangeLoco
}

// pressTarget 按键语义：锁存功能按下翻转、松开忽略；非锁存功能跟随按键
func pressTarget(l types.Locomotive, fn int, pressed bool) (on bool, act bool) {
	if l.Latches(fn) {
		if !pressed {
			return false, false
		}
		return !l.FunctionOn(fn), true
	}
	return pressed, true
}

// drive 执行机车操作
//
// 先读取机车（loco 锁），释放锁后写上游，成功后再次取锁更新机车表。
// 表内容变化时广播，未变化时不广播。
func (d *Dispatcher) drive(ctx context.Context, src types.Source, letter byte, id uint16, cmd locoCommand) (types.Locomotive, error) {
	if cmd.fn >= types.MaxFunctions {
		return types.Locomotive{}, fmt.Errorf("%w: %d", types.ErrInvalidFunction, cmd.fn)
	}
	cur, err := d.tables.Roster.Ensure(ctx, id, 0)
	if err != nil {
		return types.Locomotive{}, err
	}

	frames, acquired, err := d.encodeDrive(letter, cur, cmd)
	if err != nil {
		return cur, err
	}
	if err := d.sendAll(ctx, frames...); err != nil {
		return cur, err
	}
	if acquired != 0 {
		d.letters.setUpstream(id, acquired)
	}

	l, changed, err := d.tables.Roster.Update(ctx, id, cmd.apply)
	if err != nil {
		return cur, err
	}
	if changed {
		d.publish(types.Change{Kind: cmd.changeKind(), Source: src, Loco: l, Function: cmd.fn})
	}
	return l, nil
}

// encodeDrive 按上游协议编码机车操作
//
// 上游为 WiThrottle 且机车尚未挂在任何字母下时，先以 letter 占用，
// 返回的 acquired 为新占用使用的字母。
func (d *Dispatcher) encodeDrive(letter byte, l types.Locomotive, cmd locoCommand) (frames []string, acquired byte, err error) {
	switch d.UpstreamProtocol() {
	case types.ProtocolWiThrottle:
		addr := l.Address()
		th, ok := d.letters.upstreamLetter(l.ID)
		if !ok {
			th = letter
			acquired = letter
			frames = append(frames, withrottle.Acquire(th, addr))
		}
		if f := withrottle.Direction(th, addr, cmd.dir); f != "" {
			frames = append(frames, f)
		}
		if cmd.hasSpeed {
			if cmd.speed < 0 {
				frames = append(frames, withrottle.EStop(th, addr))
			} else {
				frames = append(frames, withrottle.Speed(th, addr, cmd.speed))
			}
		}
		if cmd.fn >= 0 {
			frames = append(frames, withrottle.ForceFunction(th, addr, cmd.fn, cmd.fnOn))
		}
		return frames, acquired, nil

	case types.ProtocolDCCEx:
		if cmd.hasSpeed || cmd.dir != types.DirUnchanged {
			speed := int(l.Speed)
			if cmd.hasSpeed {
				speed = cmd.speed
			} else if speed < 0 {
				speed = 0
			}
			dir := l.Direction
			if cmd.dir == types.DirForward || cmd.dir == types.DirReverse {
				dir = cmd.dir
			}
			frames = append(frames, dccex.Throttle(l.ID, speed, dir))
		}
		if cmd.fn >= 0 {
			frames = append(frames, dccex.Function(l.ID, cmd.fn, cmd.fnOn))
		}
		return frames, 0, nil
	}
	return nil, 0, types.ErrNotConnected
}

// releaseUpstream 机车不再被本机任何一方使用时，在上游释放
func (d *Dispatcher) releaseUpstream(ctx context.Context, l types.Locomotive) error {
	if d.UpstreamProtocol() != types.ProtocolWiThrottle {
		return nil
	}
	th, ok := d.letters.upstreamLetter(l.ID)
	if !ok {
		return nil
	}
	d.letters.dropUpstream(l.ID)
	return d.sendUpstream(ctx, withrottle.Release(th, l.Address()))
}
