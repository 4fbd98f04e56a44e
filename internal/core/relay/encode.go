package relay

import (
	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// RefusalText 槽位已满时告知 WiThrottle 客户端的文本
const RefusalText = "Too many relay clients"

// refusal 槽位已满时的拒绝帧
func refusal(proto types.Protocol) string {
	if proto == types.ProtocolDCCEx {
		return dccex.Fail()
	}
	return withrottle.Alert(RefusalText)
}

// ============================================================================
//                              变更编码
// ============================================================================

// encodeChange 把一条变更编码为客户端协议的帧
//
// letters 返回客户端占用该机车所用的字母，为空时使用 withrottle.DefaultThrottle。
func encodeChange(proto types.Protocol, c types.Change, letters func(id uint16) []byte) []string {
	switch proto {
	case types.ProtocolWiThrottle:
		return encodeWiThrottle(c, letters)
	case types.ProtocolDCCEx:
		return encodeDCCEx(c)
	}
	return nil
}

func encodeWiThrottle(c types.Change, letters func(id uint16) []byte) []string {
	switch c.Kind {
	case types.ChangeLoco, types.ChangeFunction:
		ths := letters(c.Loco.ID)
		if len(ths) == 0 {
			ths = []byte{withrottle.DefaultThrottle}
		}
		var out []string
		for _, th := range ths {
			if c.Kind == types.ChangeFunction {
				out = append(out, withrottle.LocoFunction(th, c.Loco, c.Function))
				continue
			}
			if d := withrottle.LocoDirection(th, c.Loco); d != "" {
				out = append(out, d)
			}
			out = append(out, withrottle.LocoSpeed(th, c.Loco))
		}
		return out
	case types.ChangeTurnout:
		return []string{withrottle.TurnoutState(c.Turnout)}
	case types.ChangeRoute:
		return []string{withrottle.RouteState(c.Route)}
	case types.ChangePower:
		return []string{withrottle.PowerState(c.Power)}
	case types.ChangeFastClock:
		return []string{withrottle.FastClock(c.Clock)}
	case types.ChangeRoster:
		return []string{withrottle.RosterList(withrottle.SortedRoster(c.Locos))}
	case types.ChangeTurnoutList:
		return []string{withrottle.TurnoutList(c.Turnouts)}
	case types.ChangeRouteList:
		return []string{withrottle.RouteList(c.Routes)}
	case types.ChangeLinkDown:
		return []string{withrottle.Alert(c.Message)}
	case types.ChangeLinkUp:
		return []string{withrottle.Info("Connected to " + c.Message)}
	}
	return nil
}

func encodeDCCEx(c types.Change) []string {
	switch c.Kind {
	case types.ChangeLoco, types.ChangeFunction:
		return []string{dccex.LocoState(c.Loco)}
	case types.ChangeTurnout:
		id, ok := dccex.NumericID(c.Turnout.SysName)
		if !ok {
			return nil
		}
		return []string{dccex.TurnoutState(id, c.Turnout.State)}
	case types.ChangePower:
		return []string{dccex.PowerState(c.Power)}
	case types.ChangeFastClock:
		return []string{dccex.Clock(c.Clock)}
	case types.ChangeLinkDown:
		return []string{dccex.Fail()}
	}
	// DCC-Ex 客户端用 <J ...> 主动查询列表，进路状态没有广播帧
	return nil
}
