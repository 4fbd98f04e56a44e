package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              上游 DCC-Ex（客户端角色）
// ============================================================================

// upstreamDCCEx 处理 DCC-Ex 指令站发来的一帧
func (d *Dispatcher) upstreamDCCEx(ctx context.Context, frame string) error {
	c, err := dccex.Parse(frame)
	if err != nil {
		return err
	}

	switch c.Op {
	case "i":
		d.serverDesc.Store(c.Text)
		log.Info("DCC-Ex 指令站", "banner", c.Text)

	case "p":
		switch c.Arg(0) {
		case "1":
			d.setPowerState(types.PowerOn)
		case "0":
			d.setPowerState(types.PowerOff)
		default:
			return fmt.Errorf("%w: %q", types.ErrMalformedFrame, frame)
		}

	case "l":
		return d.stationLoco(ctx, c)

	case "H":
		id, err := c.Int(0)
		if err != nil {
			return err
		}
		return d.applyTurnout(ctx, strconv.Itoa(id), dccex.TurnoutStateFromChar(c.Arg(1)))

	case "jT":
		return d.stationTurnouts(ctx, c)
	case "jA":
		return d.stationRoutes(ctx, c)
	case "jR":
		return d.stationRoster(ctx, c)

	case "jC":
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
		d.observeClock(types.FastClockTime{Seconds: uint32(minutes*60) % 86400, Rate: float64(rate)})

	case "r", "v":
		res, err := dccex.ParseCVReply(c)
		if err != nil {
			return err
		}
		if d.cvPending.Swap(false) {
			d.deliverCV(res)
		}

	case "X":
		if d.cvPending.Swap(false) {
			d.deliverCV(types.CVResult{Value: -1})
			return nil
		}
		d.bus.Diagf("station refused a command")

	case "@", "*":
		d.bus.Diagf("station: %s", strings.TrimSuffix(c.Text, "*"))

	case "O", "#", "q", "Q", "Y":
		// 应答、槽位数与传感器状态不影响共享表

	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownFrame, frame)
	}
	return nil
}

// stationLoco 处理机车状态广播 <l cab reg speedByte functMap>
func (d *Dispatcher) stationLoco(ctx context.Context, c dccex.Command) error {
	if len(c.Args) < 4 {
		return fmt.Errorf("%w: %q", types.ErrMalformedFrame, c.Raw)
	}
	cab, err := c.Int(0)
	if err != nil {
		return err
	}
	if cab < 0 || cab > types.MaxLongAddress {
		return fmt.Errorf("%w: %d", types.ErrInvalidAddress, cab)
	}
	sb, err := c.Int(2)
	if err != nil {
		return err
	}
	fmap, err := strconv.ParseUint(c.Args[3], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: functions %q", types.ErrMalformedFrame, c.Args[3])
	}
	speed, dir, _ := dccex.DecodeSpeedByte(sb)
	_, err = d.upsertLoco(ctx, types.UpstreamSource(), uint16(cab), func(l *types.Locomotive) {
		l.Speed = int16(speed)
		l.Direction = dir
		l.Functions = uint32(fmap)
	})
	return err
}

// listReply 解析 <jT ...>、<jA ...>、<jR ...> 应答的形式
type listReply int

const (
	replyList listReply = iota
	replyDetail
	replyUnknown
)

func classifyList(c dccex.Command) listReply {
	switch {
	case strings.Contains(c.Raw, `"`):
		return replyDetail
	case len(c.Args) == 2 && c.Args[1] == "X":
		return replyUnknown
	}
	return replyList
}

// stationTurnouts 处理道岔列表与详情
//
// 列表应答先以占位定义替换道岔表，释放锁后逐个查询详情。
func (d *Dispatcher) stationTurnouts(ctx context.Context, c dccex.Command) error {
	src := types.UpstreamSource()
	switch classifyList(c) {
	case replyDetail:
		id, err := c.Int(0)
		if err != nil {
			return err
		}
		to := types.Turnout{
			SysName:  strconv.Itoa(id),
			UserName: c.Arg(2),
			State:    dccex.TurnoutStateFromChar(c.Arg(1)),
		}
		changed, err := d.tables.Turnouts.Define(ctx, to)
		if err != nil || !changed {
			return err
		}
		return d.publishTurnoutList(ctx, src)

	case replyUnknown:
		id, err := c.Int(0)
		if err != nil {
			return err
		}
		removed, err := d.tables.Turnouts.Remove(ctx, strconv.Itoa(id))
		if err != nil || !removed {
			return err
		}
		return d.publishTurnoutList(ctx, src)
	}

	ids, err := c.Ints()
	if err != nil {
		return err
	}
	list := make([]types.Turnout, 0, len(ids))
	for _, id := range ids {
		list = append(list, types.Turnout{SysName: strconv.Itoa(id), State: types.TurnoutUnknown})
	}
	if err := d.tables.Turnouts.DefineAll(ctx, list); err != nil {
		return err
	}
	if err := d.publishTurnoutList(ctx, src); err != nil {
		return err
	}
	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, d.sendUpstream(ctx, dccex.QueryTurnout(id)))
	}
	return errs
}

// stationRoutes 处理进路列表与详情，本地定义的进路保留
func (d *Dispatcher) stationRoutes(ctx context.Context, c dccex.Command) error {
	src := types.UpstreamSource()
	switch classifyList(c) {
	case replyDetail:
		id, err := c.Int(0)
		if err != nil {
			return err
		}
		sys := strconv.Itoa(id)
		rt, ok, err := d.tables.Routes.Get(ctx, sys)
		if err != nil {
			return err
		}
		if ok && rt.Local() {
			return nil
		}
		if err := d.tables.Routes.Define(ctx, types.Route{SysName: sys, UserName: c.Arg(2), State: rt.State}); err != nil {
			return err
		}
		return d.publishRouteList(ctx, src)

	case replyUnknown:
		id, err := c.Int(0)
		if err != nil {
			return err
		}
		removed, err := d.tables.Routes.Remove(ctx, strconv.Itoa(id))
		if err != nil || !removed {
			return err
		}
		return d.publishRouteList(ctx, src)
	}

	ids, err := c.Ints()
	if err != nil {
		return err
	}
	list := make([]types.Route, 0, len(ids))
	for _, id := range ids {
		list = append(list, types.Route{SysName: strconv.Itoa(id)})
	}
	if err := d.replaceRoutes(ctx, list); err != nil {
		return err
	}
	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, d.sendUpstream(ctx, dccex.QueryRoute(id)))
	}
	return errs
}

// stationRoster 处理名册列表与详情 <jR id "name" "labels">
func (d *Dispatcher) stationRoster(ctx context.Context, c dccex.Command) error {
	src := types.UpstreamSource()
	switch classifyList(c) {
	case replyDetail:
		id, err := c.Int(0)
		if err != nil {
			return err
		}
		if id < 0 || id > types.MaxLongAddress {
			return fmt.Errorf("%w: %d", types.ErrInvalidAddress, id)
		}
		labels, latch := types.ParseFunctionLabels(c.Arg(2))
		_, changed, err := d.tables.Roster.Upsert(ctx, uint16(id), func(l *types.Locomotive) {
			if name := c.Arg(1); name != "" {
				l.Name = name
			}
			l.FunctionLabels = labels
			l.Latch = latch
		})
		if err != nil || !changed {
			return err
		}
		return d.publishRoster(ctx, src)

	case replyUnknown:
		return nil
	}

	ids, err := c.Ints()
	if err != nil {
		return err
	}
	locos := make([]types.Locomotive, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id > types.MaxLongAddress {
			continue
		}
		locos = append(locos, types.Locomotive{ID: uint16(id)})
	}
	if err := d.tables.Roster.Load(ctx, locos); err != nil {
		return err
	}
	if err := d.publishRoster(ctx, src); err != nil {
		return err
	}
	var errs error
	for _, l := range locos {
		errs = multierr.Append(errs, d.sendUpstream(ctx, dccex.QueryRoster(int(l.ID))))
	}
	return errs
}
