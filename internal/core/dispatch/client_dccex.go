package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              中继 DCC-Ex 客户端（指令站角色）
// ============================================================================

// StationVersion 向 DCC-Ex 客户端自报的指令站版本
const StationVersion = "5.0.0"

// RelaySlots 对 <#> 的应答槽位数
const RelaySlots = 50

// clientDCCEx 处理中继 DCC-Ex 客户端发来的一帧
func (d *Dispatcher) clientDCCEx(ctx context.Context, slot int, frame string) error {
	c, err := dccex.Parse(frame)
	if err != nil {
		return err
	}

	switch c.Op {
	case "s":
		d.reply(slot, dccex.Banner(d.stationBanner()), dccex.PowerState(d.Power()))

	case "1":
		return d.replyError(slot, d.SetPower(ctx, true))
	case "0":
		return d.replyError(slot, d.SetPower(ctx, false))

	case "t":
		return d.clientThrottleB(ctx, slot, c)

	case "F":
		if len(c.Args) < 3 {
			return fmt.Errorf("%w: %q", types.ErrMalformedFrame, frame)
		}
		vals, err := c.Ints()
		if err != nil {
			return err
		}
		if vals[0] < 0 || vals[0] > types.MaxLongAddress {
			return fmt.Errorf("%w: %d", types.ErrInvalidAddress, vals[0])
		}
		id := uint16(vals[0])
		d.bindDCCExClient(ctx, slot, id)
		_, err = d.drive(ctx, types.RelaySource(slot), relayLetter(slot), id, functionCommand(vals[1], vals[2] != 0))
		return d.replyError(slot, err)

	case "T":
		return d.clientTurnoutB(ctx, slot, c)

	case "J":
		return d.clientQueryB(ctx, slot, c)

	case "JC":
		return d.clientClockB(ctx, slot, c)

	case "/":
		if strings.ToUpper(c.Arg(0)) != "START" || len(c.Args) < 2 {
			d.reply(slot, dccex.Fail())
			return nil
		}
		id, err := c.Int(1)
		if err != nil {
			return err
		}
		rt, ok := d.findByNumeric(ctx, id, routeIDs)
		if !ok {
			d.reply(slot, dccex.Fail())
			return nil
		}
		return d.replyError(slot, d.RouteInitiate(ctx, rt))

	case "R":
		switch len(c.Args) {
		case 0:
			return d.relayCV(ctx, slot, dccex.ReadAddress())
		default:
			cv, err := c.Int(0)
			if err != nil {
				return err
			}
			return d.relayCV(ctx, slot, dccex.ReadCV(cv))
		}

	case "W":
		if len(c.Args) < 2 {
			d.reply(slot, dccex.Fail())
			return nil
		}
		cv, err := c.Int(0)
		if err != nil {
			return err
		}
		value, err := c.Int(1)
		if err != nil {
			return err
		}
		return d.relayCV(ctx, slot, dccex.WriteCV(cv, value))

	case "!":
		return d.replyError(slot, d.EStopAll(ctx))

	case "#":
		d.reply(slot, dccex.Slots(RelaySlots))

	case "-":
		if len(c.Args) == 0 {
			for _, id := range d.letters.dropSlot(slot) {
				d.clearRelaySlot(ctx, slot, id)
			}
			return nil
		}
		cab, err := c.Int(0)
		if err != nil {
			return err
		}
		if d.letters.unbindClient(uint16(cab), slot) {
			d.clearRelaySlot(ctx, slot, uint16(cab))
		}

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownFrame, frame)
	}
	return nil
}

// stationBanner 向客户端自报的横幅
func (d *Dispatcher) stationBanner() string {
	if d.UpstreamProtocol() == types.ProtocolDCCEx {
		if desc := d.ServerDesc(); desc != "" {
			return desc
		}
	}
	return fmt.Sprintf("DCC-EX V-%s / %s / %s G-relay", StationVersion, ServerType, d.cfg.Name)
}

// bindDCCExClient 记录最近驱动机车的 DCC-Ex 客户端
func (d *Dispatcher) bindDCCExClient(ctx context.Context, slot int, id uint16) {
	if b, ok := d.letters.client(id); ok && b.slot == slot {
		return
	}
	d.letters.bindClient(id, slot, 0)
	if _, _, err := d.tables.Roster.Upsert(ctx, id, func(l *types.Locomotive) { l.RelaySlot = slot }); err != nil {
		log.Debug("记录客户端占用失败", "slot", slot, "loco", id, "err", err)
	}
}

func (d *Dispatcher) clearRelaySlot(ctx context.Context, slot int, id uint16) {
	l, changed, err := d.tables.Roster.Update(ctx, id, func(l *types.Locomotive) {
		if l.RelaySlot == slot {
			l.RelaySlot = types.NoSlot
		}
	})
	if err != nil {
		return
	}
	if changed {
		d.publish(types.Change{Kind: types.ChangeLoco, Source: types.RelaySource(slot), Loco: l})
	}
}

// clientThrottleB 处理 <t cab speed dir>、<t reg cab speed dir> 与查询 <t cab>
//
// 请求方总会收到一条 <l> 应答，状态未变化时也不例外。
func (d *Dispatcher) clientThrottleB(ctx context.Context, slot int, c dccex.Command) error {
	vals, err := c.Ints()
	if err != nil {
		return err
	}
	var cab, speed, dir int
	switch len(vals) {
	case 1:
		if vals[0] < 0 || vals[0] > types.MaxLongAddress {
			return fmt.Errorf("%w: %d", types.ErrInvalidAddress, vals[0])
		}
		l, err := d.tables.Roster.Ensure(ctx, uint16(vals[0]), 0)
		if err != nil {
			return err
		}
		d.reply(slot, dccex.LocoState(l))
		return nil
	case 3:
		cab, speed, dir = vals[0], vals[1], vals[2]
	case 4:
		cab, speed, dir = vals[1], vals[2], vals[3]
	default:
		return fmt.Errorf("%w: %q", types.ErrMalformedFrame, c.Raw)
	}
	if cab < 0 || cab > types.MaxLongAddress {
		return fmt.Errorf("%w: %d", types.ErrInvalidAddress, cab)
	}
	if speed < -1 || speed > types.MaxSpeed {
		return fmt.Errorf("%w: speed %d", types.ErrMalformedFrame, speed)
	}

	id := uint16(cab)
	d.bindDCCExClient(ctx, slot, id)
	l, err := d.drive(ctx, types.RelaySource(slot), relayLetter(slot), id,
		throttleCommand(speed, dccex.DirectionFromFlag(dir)))
	if err != nil {
		return d.replyError(slot, err)
	}
	d.reply(slot, dccex.LocoState(l))
	return nil
}

// clientTurnoutB 处理 <T> 列表与 <T id 0|1> 动作
func (d *Dispatcher) clientTurnoutB(ctx context.Context, slot int, c dccex.Command) error {
	if len(c.Args) == 0 {
		list, err := d.tables.Turnouts.List(ctx)
		if err != nil {
			return err
		}
		frames := make([]string, 0, len(list))
		for _, to := range list {
			if id, ok := dccex.NumericID(to.SysName); ok {
				frames = append(frames, dccex.TurnoutState(id, to.State))
			}
		}
		if len(frames) == 0 {
			frames = append(frames, dccex.Fail())
		}
		d.reply(slot, frames...)
		return nil
	}
	if len(c.Args) != 2 {
		// 定义与删除道岔只能在本机控制台完成
		d.reply(slot, dccex.Fail())
		return nil
	}
	id, err := c.Int(0)
	if err != nil {
		return err
	}
	st := dccex.TurnoutStateFromChar(c.Arg(1))
	if st != types.TurnoutClosed && st != types.TurnoutThrown {
		d.reply(slot, dccex.Fail())
		return nil
	}
	sys, ok := d.findByNumeric(ctx, id, turnoutIDs)
	if !ok {
		d.reply(slot, dccex.Fail())
		return nil
	}
	return d.replyError(slot, d.SetTurnout(ctx, sys, st))
}

// clientQueryB 处理 <J T|A|R|C [id]> 查询，全部由共享表应答
func (d *Dispatcher) clientQueryB(ctx context.Context, slot int, c dccex.Command) error {
	sub := c.Arg(0)
	hasID := len(c.Args) > 1
	var id int
	if hasID {
		var err error
		if id, err = c.Int(1); err != nil {
			return err
		}
	}

	switch sub {
	case "T":
		list, err := d.tables.Turnouts.List(ctx)
		if err != nil {
			return err
		}
		if !hasID {
			d.reply(slot, dccex.IDList("jT", numericIDs(turnoutNames(list))))
			return nil
		}
		for _, to := range list {
			if n, ok := dccex.NumericID(to.SysName); ok && n == id {
				d.reply(slot, dccex.TurnoutDetail(id, to))
				return nil
			}
		}
		d.reply(slot, dccex.Unknown("jT", id))

	case "A":
		list, err := d.tables.Routes.List(ctx)
		if err != nil {
			return err
		}
		if !hasID {
			d.reply(slot, dccex.IDList("jA", numericIDs(routeNames(list))))
			return nil
		}
		for _, rt := range list {
			if n, ok := dccex.NumericID(rt.SysName); ok && n == id {
				d.reply(slot, dccex.RouteDetail(id, rt))
				return nil
			}
		}
		d.reply(slot, dccex.Unknown("jA", id))

	case "R":
		locos, err := d.tables.Roster.List(ctx)
		if err != nil {
			return err
		}
		if !hasID {
			ids := make([]int, 0, len(locos))
			for _, l := range locos {
				ids = append(ids, int(l.ID))
			}
			d.reply(slot, dccex.IDList("jR", ids))
			return nil
		}
		for _, l := range locos {
			if int(l.ID) == id {
				d.reply(slot, dccex.RosterDetail(l))
				return nil
			}
		}
		d.reply(slot, dccex.Unknown("jR", id))

	case "C":
		if clk := d.getClock(); clk != nil {
			d.reply(slot, dccex.Clock(clk.Now()))
			return nil
		}
		d.reply(slot, dccex.Fail())

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownFrame, c.Raw)
	}
	return nil
}

// clientClockB 处理 <JC minutes rate>
//
// 本机为权威时钟时直接设置，否则转给 DCC-Ex 指令站。
func (d *Dispatcher) clientClockB(ctx context.Context, slot int, c dccex.Command) error {
	minutes, err := c.Int(0)
	if err != nil {
		return err
	}
	rate := 0
	if len(c.Args) > 1 {
		if rate, err = c.Int(1); err != nil {
			return err
		}
	}
	t := types.FastClockTime{Seconds: uint32(minutes*60) % 86400, Rate: float64(rate)}
	if clk := d.getClock(); clk != nil && clk.Authoritative() {
		clk.Set(t)
		d.publish(types.Change{Kind: types.ChangeFastClock, Source: types.RelaySource(slot), Clock: t})
		return nil
	}
	if d.UpstreamProtocol() == types.ProtocolDCCEx {
		return d.replyError(slot, d.sendUpstream(ctx, dccex.SetClock(t)))
	}
	d.reply(slot, dccex.Fail())
	return nil
}

// ============================================================================
//                              数字标识
// ============================================================================

type idKind int

const (
	turnoutIDs idKind = iota
	routeIDs
)

// findByNumeric 按 DCC-Ex 数字标识查找道岔或进路的系统名
func (d *Dispatcher) findByNumeric(ctx context.Context, id int, kind idKind) (string, bool) {
	var names []string
	switch kind {
	case turnoutIDs:
		list, err := d.tables.Turnouts.List(ctx)
		if err != nil {
			return "", false
		}
		names = turnoutNames(list)
	case routeIDs:
		list, err := d.tables.Routes.List(ctx)
		if err != nil {
			return "", false
		}
		names = routeNames(list)
	}
	want := strconv.Itoa(id)
	for _, n := range names {
		if n == want {
			return n, true
		}
	}
	for _, n := range names {
		if v, ok := dccex.NumericID(n); ok && v == id {
			return n, true
		}
	}
	return "", false
}

func turnoutNames(list []types.Turnout) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.SysName
	}
	return out
}

func routeNames(list []types.Route) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.SysName
	}
	return out
}

func numericIDs(names []string) []int {
	out := make([]int, 0, len(names))
	for _, n := range names {
		if id, ok := dccex.NumericID(n); ok {
			out = append(out, id)
		}
	}
	return out
}
