// Package state 实现共享状态表
//
// 机车、道岔、进路、中继连接各有一张表，每张表一把带超时的锁（Guard）。
// 跨表操作必须通过 AcquireAll 按固定顺序取锁：
//
//	loco < turnout < route < relay < link < console
//
// 锁内只做内存操作，任何网络 I/O 都在释放锁之后进行。
package state

import (
	"context"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("state")

// Tables 全部共享表
type Tables struct {
	Roster   *Roster
	Turnouts *Turnouts
	Routes   *Routes
	Relay    *RelayTable
}

// NewTables 按配置创建共享表
func NewTables(cfg *config.Config) *Tables {
	timeout := cfg.Throttle.LockTimeout
	maxRelay := 0
	if cfg.Relay.Enabled() {
		maxRelay = cfg.Relay.MaxClients
	}
	return &Tables{
		Roster: NewRoster(RosterConfig{
			LockTimeout:  timeout,
			MaxConsist:   cfg.Throttle.MaxConsist,
			LatchDefault: cfg.Throttle.LatchDefault,
			LeadDefault:  cfg.Throttle.LeadDefault,
		}),
		Turnouts: NewTurnouts(timeout),
		Routes:   NewRoutes(timeout),
		Relay:    NewRelayTable(maxRelay, timeout),
	}
}

// ResetSession 新会话开始时清空机车、道岔、进路缓存
func (t *Tables) ResetSession(ctx context.Context) error {
	release, err := AcquireAll(ctx, t.Routes.guard, t.Turnouts.guard, t.Roster.guard)
	if err != nil {
		return err
	}
	defer release()

	t.Roster.clearLocked()
	t.Turnouts.clearLocked()
	t.Routes.clearLocked()
	return nil
}

// ApplyTurnoutState 更新道岔状态并使不再成立的已确认进路失效
//
// 道岔与进路在同一临界区内更新，观察者不会看到道岔已变而进路仍为
// confirmed 的中间状态。
func (t *Tables) ApplyTurnoutState(ctx context.Context, sysName string, state types.TurnoutState) (types.Turnout, bool, []types.Route, error) {
	release, err := AcquireAll(ctx, t.Turnouts.guard, t.Routes.guard)
	if err != nil {
		return types.Turnout{}, false, nil, err
	}
	defer release()

	to, changed, err := t.Turnouts.setStateLocked(sysName, state)
	if err != nil || !changed {
		return to, changed, nil, err
	}
	return to, true, t.Routes.invalidateLocked(sysName, state), nil
}

// RouteSatisfied 检查进路的所有步骤是否已与道岔实际状态一致
func (t *Tables) RouteSatisfied(ctx context.Context, sysName string) (bool, error) {
	release, err := AcquireAll(ctx, t.Turnouts.guard, t.Routes.guard)
	if err != nil {
		return false, err
	}
	defer release()

	rt, ok := t.Routes.items[sysName]
	if !ok {
		return false, types.ErrUnknownRoute
	}
	for _, s := range rt.Steps {
		to, ok := t.Turnouts.items[s.Turnout]
		if !ok || to.State != s.State {
			return false, nil
		}
	}
	return true, nil
}

// Snapshot 全部表的一致快照
type Snapshot struct {
	Locos    []types.Locomotive
	Turnouts []types.Turnout
	Routes   []types.Route
	Relay    []types.RelayConnection
	Labels   map[types.TurnoutState]string
}

// Snapshot 在同一临界区内读取全部表
func (t *Tables) Snapshot(ctx context.Context) (Snapshot, error) {
	release, err := AcquireAll(ctx, t.Relay.guard, t.Routes.guard, t.Turnouts.guard, t.Roster.guard)
	if err != nil {
		return Snapshot{}, err
	}
	defer release()

	labels := make(map[types.TurnoutState]string, len(t.Turnouts.labels))
	for k, v := range t.Turnouts.labels {
		labels[k] = v
	}
	return Snapshot{
		Locos:    t.Roster.listLocked(),
		Turnouts: t.Turnouts.listLocked(),
		Routes:   t.Routes.listLocked(),
		Relay:    t.Relay.snapshotLocked(),
		Labels:   labels,
	}, nil
}
