package diag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/fastclock"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              依赖接口
// ============================================================================

// Controller 控制台需要的分发器能力
type Controller interface {
	SetPower(ctx context.Context, on bool) error
	SetTurnout(ctx context.Context, name string, st types.TurnoutState) error
	RouteInitiate(ctx context.Context, name string) error
	SetShowPackets(on bool)
	ShowPackets() bool
	Power() types.PowerState
	ServerDesc() string
	Tables() *state.Tables
}

// LinkStatus 上游连接状态
type LinkStatus interface {
	State() types.ConnState
	Server() string
	Protocol() types.Protocol
}

// FastClock 快钟读取
type FastClock interface {
	Now() types.FastClockTime
	Authoritative() bool
	Valid() bool
}

// Counters 帧计数
type Counters interface {
	Totals() metrics.Stats
	Dropped() map[string]int64
	Reconnects() int64
	RelayRefused() int64
}

// ============================================================================
//                              Console 命令处理
// ============================================================================

type command struct {
	usage string
	run   func(ctx context.Context, args []string) ([]string, error)
}

// Console 文本控制台
//
// 网络诊断会话与本地终端共用同一套命令；修改走与网络帧相同的共享表与锁。
type Console struct {
	ctl      Controller
	link     LinkStatus
	clock    FastClock
	store    interfaces.ConfigStore
	counters Counters

	commands map[string]command
}

// NewConsole 创建控制台，除 ctl 外的依赖均可为 nil
func NewConsole(ctl Controller, link LinkStatus, clk FastClock, store interfaces.ConfigStore, counters Counters) *Console {
	c := &Console{
		ctl:      ctl,
		link:     link,
		clock:    clk,
		store:    store,
		counters: counters,
	}
	c.commands = map[string]command{
		"help":          {"help", c.help},
		"show":          {"show locos|turnouts|routes|relay|clock|status", c.show},
		"add":           {"add loco <id> <name...> | add turnout <sys> <name...> | add route <name> {<turnout> <C|T>}...", c.add},
		"del":           {"del turnout|route <name>", c.del},
		"power":         {"power on|off", c.power},
		"throw":         {"throw <turnout>", c.turnout(types.TurnoutThrown)},
		"close":         {"close <turnout>", c.turnout(types.TurnoutClosed)},
		"route":         {"route <name>", c.route},
		"get":           {"get <key>", c.get},
		"set":           {"set <key> <value>", c.set},
		"showpackets":   {"showpackets", c.packets(true)},
		"noshowpackets": {"noshowpackets", c.packets(false)},
		"quit":          {"quit", func(context.Context, []string) ([]string, error) { return nil, ErrQuit }},
	}
	return c
}

// Execute 执行一行命令，返回输出行
//
// quit 返回 ErrQuit；其他错误已格式化为输出行，不再返回。
func (c *Console) Execute(ctx context.Context, line string) ([]string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	cmd, ok := c.commands[strings.ToLower(fields[0])]
	if !ok {
		return []string{fmt.Sprintf("unknown command %q, try help", fields[0])}, nil
	}
	out, err := cmd.run(ctx, fields[1:])
	switch {
	case errors.Is(err, ErrQuit):
		return out, err
	case errors.Is(err, ErrUsage):
		return append(out, "usage: "+cmd.usage), nil
	case err != nil:
		log.Debug("控制台命令失败", "cmd", fields[0], "err", err)
		return append(out, "error: "+err.Error()), nil
	}
	return out, nil
}

func (c *Console) help(context.Context, []string) ([]string, error) {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, "  "+c.commands[name].usage)
	}
	return out, nil
}

// ============================================================================
//                              show
// ============================================================================

func (c *Console) show(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, ErrUsage
	}
	tables := c.ctl.Tables()
	switch strings.ToLower(args[0]) {
	case "locos":
		return showLocos(ctx, tables.Roster)
	case "turnouts":
		return showTurnouts(ctx, tables.Turnouts)
	case "routes":
		return showRoutes(ctx, tables.Routes)
	case "relay":
		return showRelay(ctx, tables.Relay)
	case "clock":
		return c.showClock(), nil
	case "status":
		return c.showStatus(), nil
	}
	return nil, ErrUsage
}

func showLocos(ctx context.Context, r *state.Roster) ([]string, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{fmt.Sprintf("%d locomotives", len(list))}
	for _, l := range list {
		owner := "-"
		switch {
		case l.Owned:
			owner = "throttle " + strconv.Itoa(l.Throttle)
		case l.RelaySlot != types.NoSlot:
			owner = "relay " + strconv.Itoa(l.RelaySlot)
		}
		out = append(out, fmt.Sprintf("  %-6s %-16s speed %-4d %-8s %s", l.Address(), l.Name, l.Speed, l.Direction, owner))
	}
	return out, nil
}

func showTurnouts(ctx context.Context, t *state.Turnouts) ([]string, error) {
	list, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{fmt.Sprintf("%d turnouts", len(list))}
	for _, to := range list {
		out = append(out, fmt.Sprintf("  %-10s %-16s %s", to.SysName, to.UserName, to.State))
	}
	return out, nil
}

func showRoutes(ctx context.Context, r *state.Routes) ([]string, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{fmt.Sprintf("%d routes", len(list))}
	for _, rt := range list {
		steps := "station"
		if rt.Local() {
			parts := make([]string, 0, len(rt.Steps))
			for _, s := range rt.Steps {
				parts = append(parts, s.Turnout+" "+stateChar(s.State))
			}
			steps = strings.Join(parts, ", ")
		}
		out = append(out, fmt.Sprintf("  %-10s %-16s %-12s %s", rt.SysName, rt.UserName, rt.State, steps))
	}
	return out, nil
}

func showRelay(ctx context.Context, t *state.RelayTable) ([]string, error) {
	list, err := t.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	hw, err := t.HighWater(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{fmt.Sprintf("%d/%d relay clients, high water %d", len(list), t.Capacity(), hw)}
	for _, rc := range list {
		out = append(out, fmt.Sprintf("  [%d] %-21s %-16s in %d out %d", rc.Slot, rc.RemoteAddr, rc.NodeName, rc.InFrames, rc.OutFrames))
	}
	return out, nil
}

func (c *Console) showClock() []string {
	if c.clock == nil || !c.clock.Valid() {
		return []string{"fast clock not set"}
	}
	mode := "follower"
	if c.clock.Authoritative() {
		mode = "authoritative"
	}
	return []string{fmt.Sprintf("fast clock %s (%s)", fastclock.Format(c.clock.Now()), mode)}
}

func (c *Console) showStatus() []string {
	var out []string
	if c.link != nil {
		line := "upstream " + c.link.State().String()
		if c.link.State() == types.ConnConnected {
			line += fmt.Sprintf(": %s %s", c.link.Protocol(), c.link.Server())
		}
		out = append(out, line)
	}
	if desc := c.ctl.ServerDesc(); desc != "" {
		out = append(out, "server "+desc)
	}
	out = append(out, "power "+c.ctl.Power().String())
	if c.counters != nil {
		t := c.counters.Totals()
		out = append(out, fmt.Sprintf("frames in %d (%.1f/s) out %d (%.1f/s)", t.TotalIn, t.RateIn, t.TotalOut, t.RateOut))
		out = append(out, fmt.Sprintf("reconnects %d, relay refused %d", c.counters.Reconnects(), c.counters.RelayRefused()))
		dropped := c.counters.Dropped()
		reasons := make([]string, 0, len(dropped))
		for r := range dropped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			out = append(out, fmt.Sprintf("  dropped %-14s %d", r, dropped[r]))
		}
	}
	return out
}

func stateChar(st types.TurnoutState) string {
	if st == types.TurnoutThrown {
		return "T"
	}
	return "C"
}

// ============================================================================
//                              add / del
// ============================================================================

func (c *Console) add(ctx context.Context, args []string) ([]string, error) {
	if len(args) < 2 {
		return nil, ErrUsage
	}
	tables := c.ctl.Tables()
	switch strings.ToLower(args[0]) {
	case "loco":
		if len(args) < 3 {
			return nil, ErrUsage
		}
		id, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil || id == 0 || id > types.MaxLongAddress {
			return nil, fmt.Errorf("bad address %q", args[1])
		}
		name := strings.Join(args[2:], " ")
		l, _, err := tables.Roster.Upsert(ctx, uint16(id), func(l *types.Locomotive) { l.Name = name })
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("loco %s %s added", l.Address(), l.Name)}, nil

	case "turnout":
		if len(args) < 3 {
			return nil, ErrUsage
		}
		to := types.Turnout{SysName: args[1], UserName: strings.Join(args[2:], " "), State: types.TurnoutUnknown}
		if _, err := tables.Turnouts.Define(ctx, to); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("turnout %s added", to.SysName)}, nil

	case "route":
		rt, err := parseRoute(args[1], args[2:])
		if err != nil {
			return nil, err
		}
		if err := tables.Routes.Define(ctx, rt); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("route %s added with %d steps", rt.SysName, len(rt.Steps))}, nil
	}
	return nil, ErrUsage
}

// parseRoute 解析 "<turnout> <C|T>" 成对出现的步骤
func parseRoute(name string, args []string) (types.Route, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return types.Route{}, ErrUsage
	}
	rt := types.Route{SysName: name, UserName: name, State: types.RouteIdle}
	for i := 0; i < len(args); i += 2 {
		var st types.TurnoutState
		switch strings.ToUpper(args[i+1]) {
		case "C":
			st = types.TurnoutClosed
		case "T":
			st = types.TurnoutThrown
		default:
			return types.Route{}, fmt.Errorf("bad turnout state %q, want C or T", args[i+1])
		}
		rt.Steps = append(rt.Steps, types.RouteStep{Turnout: args[i], State: st})
	}
	return rt, nil
}

func (c *Console) del(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 2 {
		return nil, ErrUsage
	}
	tables := c.ctl.Tables()
	var (
		removed bool
		err     error
	)
	switch strings.ToLower(args[0]) {
	case "turnout":
		removed, err = tables.Turnouts.Remove(ctx, args[1])
	case "route":
		removed, err = tables.Routes.Remove(ctx, args[1])
	default:
		return nil, ErrUsage
	}
	if err != nil {
		return nil, err
	}
	if !removed {
		return []string{fmt.Sprintf("%s %s not found", args[0], args[1])}, nil
	}
	return []string{fmt.Sprintf("%s %s deleted", args[0], args[1])}, nil
}

// ============================================================================
//                              布局控制
// ============================================================================

func (c *Console) power(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, ErrUsage
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return nil, ErrUsage
	}
	if err := c.ctl.SetPower(ctx, on); err != nil {
		return nil, err
	}
	return []string{"power " + strings.ToLower(args[0])}, nil
}

func (c *Console) turnout(st types.TurnoutState) func(context.Context, []string) ([]string, error) {
	return func(ctx context.Context, args []string) ([]string, error) {
		if len(args) != 1 {
			return nil, ErrUsage
		}
		if err := c.ctl.SetTurnout(ctx, args[0], st); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("turnout %s -> %s", args[0], st)}, nil
	}
}

func (c *Console) route(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 1 {
		return nil, ErrUsage
	}
	if err := c.ctl.RouteInitiate(ctx, args[0]); err != nil {
		return nil, err
	}
	return []string{"route " + args[0] + " initiated"}, nil
}

func (c *Console) packets(on bool) func(context.Context, []string) ([]string, error) {
	return func(context.Context, []string) ([]string, error) {
		c.ctl.SetShowPackets(on)
		if on {
			return []string{"packet trace on"}, nil
		}
		return []string{"packet trace off"}, nil
	}
}

// ============================================================================
//                              配置存储
// ============================================================================

func (c *Console) get(_ context.Context, args []string) ([]string, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	if len(args) != 1 {
		return nil, ErrUsage
	}
	s, ok := config.LookupSetting(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown key %q", args[0])
	}
	v := c.store.GetString(s.Key, "")
	if v == "" {
		v = "(default)"
	}
	return []string{fmt.Sprintf("%s = %s  # %s", s.Key, v, s.Description)}, nil
}

func (c *Console) set(_ context.Context, args []string) ([]string, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	if len(args) < 2 {
		return nil, ErrUsage
	}
	s, ok := config.LookupSetting(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown key %q", args[0])
	}
	value := strings.Join(args[1:], " ")
	if err := s.Put(c.store, value); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("%s = %s (takes effect on restart)", s.Key, value)}, nil
}
