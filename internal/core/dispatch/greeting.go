package dispatch

import (
	"context"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              中继客户端会话
// ============================================================================

// Greeting 新接入客户端的欢迎帧
//
// WiThrottle 客户端收到版本、名册、电源、道岔与进路，最后是心跳间隔；
// DCC-Ex 客户端由自己发送 <s> 查询，不主动推送。
func (d *Dispatcher) Greeting(ctx context.Context, proto types.Protocol) []string {
	if proto != types.ProtocolWiThrottle {
		return nil
	}
	snap, err := d.tables.Snapshot(ctx)
	if err != nil {
		log.Warn("读取共享表失败，欢迎帧不完整", "err", err)
	}

	desc := d.ServerDesc()
	if desc == "" {
		desc = d.cfg.Name
	}
	frames := []string{
		withrottle.Version(),
		withrottle.ServerType(ServerType),
		withrottle.ServerDesc(desc),
		withrottle.RosterList(withrottle.SortedRoster(snap.Locos)),
		withrottle.PowerState(d.Power()),
		withrottle.TurnoutLabels(snap.Labels),
		withrottle.TurnoutList(snap.Turnouts),
		withrottle.RouteLabels(),
		withrottle.RouteList(snap.Routes),
		withrottle.HeartbeatInterval(d.cfg.Relay.KeepAlive),
	}
	if clk := d.getClock(); clk != nil && clk.Authoritative() {
		frames = append(frames, withrottle.FastClock(clk.Now()))
	}
	if d.UpstreamProtocol() == types.ProtocolUndefined {
		frames = append(frames, withrottle.Alert(NotConnectedText))
	}
	return frames
}

// ClientGone 客户端断开后释放其占用的机车
func (d *Dispatcher) ClientGone(ctx context.Context, slot int) {
	d.letters.dropSlot(slot)
	if d.cvOwner.CompareAndSwap(int32(slot), types.NoSlot) {
		d.cvPending.Store(false)
	}

	locos, err := d.tables.Roster.ReleaseSlot(ctx, slot)
	if err != nil {
		log.Warn("释放客户端机车失败", "slot", slot, "err", err)
		return
	}
	for _, l := range locos {
		if letter, ok := d.letters.upstreamLetter(l.ID); ok && letter == relayLetter(slot) && !l.Owned {
			if err := d.releaseUpstream(ctx, l); err != nil {
				log.Debug("上游释放机车失败", "loco", l.ID, "err", err)
			}
		}
		d.publish(types.Change{Kind: types.ChangeLoco, Source: types.RelaySource(slot), Loco: l})
	}
	log.Debug("中继客户端已释放", "slot", slot, "locos", len(locos))
}
