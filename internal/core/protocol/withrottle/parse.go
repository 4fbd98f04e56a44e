package withrottle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              Kind - 记录类型
// ============================================================================

// Kind 记录类型
type Kind int

const (
	KindUnknown Kind = iota
	KindVersion
	KindRoster
	KindPower
	KindTurnoutLabels
	KindTurnoutList
	KindTurnout
	KindRouteLabels
	KindRouteList
	KindRoute
	KindFastClock
	KindHeartbeat
	KindHeartbeatInterval
	KindHeartbeatOn
	KindHeartbeatOff
	KindThrottle
	KindName
	KindHardwareID
	KindServerType
	KindServerDesc
	KindAlert
	KindInfo
	KindWebPort
	KindQuit
	KindConsist
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindVersion:           "version",
	KindRoster:            "roster",
	KindPower:             "power",
	KindTurnoutLabels:     "turnout-labels",
	KindTurnoutList:       "turnout-list",
	KindTurnout:           "turnout",
	KindRouteLabels:       "route-labels",
	KindRouteList:         "route-list",
	KindRoute:             "route",
	KindFastClock:         "fastclock",
	KindHeartbeat:         "heartbeat",
	KindHeartbeatInterval: "heartbeat-interval",
	KindHeartbeatOn:       "heartbeat-on",
	KindHeartbeatOff:      "heartbeat-off",
	KindThrottle:          "throttle",
	KindName:              "name",
	KindHardwareID:        "hardware-id",
	KindServerType:        "server-type",
	KindServerDesc:        "server-desc",
	KindAlert:             "alert",
	KindInfo:              "info",
	KindWebPort:           "web-port",
	KindQuit:              "quit",
	KindConsist:           "consist",
}

// String 返回记录类型名称
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ============================================================================
//                              Message
// ============================================================================

// RosterEntry 名册条目
type RosterEntry struct {
	Name string
	ID   uint16
	Kind types.AddressKind
}

// ListItem 道岔或进路列表条目
type ListItem struct {
	SysName  string
	UserName string
	State    int
}

// Message 解析后的一帧
type Message struct {
	Kind Kind
	Raw  string

	// Text 文本载荷（版本、名称、设备标识、提示等）
	Text string

	// Value 数值载荷（心跳秒数、电源代码）
	Value int

	// Power 电源状态（KindPower）
	Power types.PowerState

	// Action 道岔/进路动作字符（KindTurnout, KindRoute）
	//
	// 客户端发出 'C'/'T'/'2'，服务器发出状态数字。
	Action byte

	// Name 道岔/进路系统名（KindTurnout, KindRoute）
	Name string

	// Roster 名册（KindRoster）
	Roster []RosterEntry

	// Items 列表（KindTurnoutList, KindRouteList）
	Items []ListItem

	// Labels 状态标签（KindTurnoutLabels, KindRouteLabels）
	Labels map[int]string

	// Clock 快钟（KindFastClock）
	Clock types.FastClockTime

	// Throttle 手柄动作（KindThrottle）
	Throttle ThrottleAction
}

// Parse 解析一帧
//
// 无法识别的帧返回 types.ErrUnknownFrame，格式错误返回 types.ErrMalformedFrame。
func Parse(frame string) (Message, error) {
	frame = strings.TrimRight(frame, "\r\n")
	m := Message{Raw: frame}
	if frame == "" {
		return m, fmt.Errorf("%w: empty", types.ErrMalformedFrame)
	}

	switch {
	case strings.HasPrefix(frame, "VN"):
		m.Kind = KindVersion
		m.Text = frame[2:]
	case strings.HasPrefix(frame, "RL"):
		return parseRoster(m)
	case strings.HasPrefix(frame, "RC"):
		m.Kind = KindConsist
	case strings.HasPrefix(frame, "PPA"):
		return parsePower(m)
	case strings.HasPrefix(frame, "PTT"):
		return parseLabels(m, KindTurnoutLabels)
	case strings.HasPrefix(frame, "PTL"):
		return parseList(m, KindTurnoutList)
	case strings.HasPrefix(frame, "PTA"):
		return parseAction(m, KindTurnout)
	case strings.HasPrefix(frame, "PRT"):
		return parseLabels(m, KindRouteLabels)
	case strings.HasPrefix(frame, "PRL"):
		return parseList(m, KindRouteList)
	case strings.HasPrefix(frame, "PRA"):
		return parseAction(m, KindRoute)
	case strings.HasPrefix(frame, "PFT"):
		return parseClock(m)
	case strings.HasPrefix(frame, "PW"):
		m.Kind = KindWebPort
		m.Text = frame[2:]
	case frame[0] == '*':
		return parseHeartbeat(m)
	case frame[0] == 'M':
		a, err := ParseThrottleAction(frame)
		if err != nil {
			return m, err
		}
		m.Kind = KindThrottle
		m.Throttle = a
	case frame[0] == 'N':
		m.Kind = KindName
		m.Text = frame[1:]
	case strings.HasPrefix(frame, "HU"):
		m.Kind = KindHardwareID
		m.Text = frame[2:]
	case strings.HasPrefix(frame, "HT"):
		m.Kind = KindServerType
		m.Text = frame[2:]
	case strings.HasPrefix(frame, "Ht"):
		m.Kind = KindServerDesc
		m.Text = frame[2:]
	case strings.HasPrefix(frame, "HM"):
		m.Kind = KindAlert
		m.Text = frame[2:]
	case strings.HasPrefix(frame, "Hm"):
		m.Kind = KindInfo
		m.Text = frame[2:]
	case frame == "Q":
		m.Kind = KindQuit
	default:
		return m, fmt.Errorf("%w: %q", types.ErrUnknownFrame, frame)
	}
	return m, nil
}

func parseRoster(m Message) (Message, error) {
	m.Kind = KindRoster
	fields, err := Split(m.Raw)
	if err != nil {
		return m, err
	}
	for _, f := range fields[1:] {
		if len(f) < 2 {
			continue
		}
		id, err := strconv.ParseUint(f[1], 10, 16)
		if err != nil || id > types.MaxLongAddress {
			return m, fmt.Errorf("%w: roster id %q", types.ErrMalformedFrame, f[1])
		}
		e := RosterEntry{Name: f[0], ID: uint16(id), Kind: types.KindForAddress(uint16(id))}
		if len(f) > 2 && f[2] == "L" {
			e.Kind = types.AddrLong
		} else if len(f) > 2 && f[2] == "S" {
			e.Kind = types.AddrShort
		}
		m.Roster = append(m.Roster, e)
	}
	return m, nil
}

func parsePower(m Message) (Message, error) {
	m.Kind = KindPower
	switch m.Raw[3:] {
	case "0":
		m.Power, m.Value = types.PowerOff, 0
	case "1":
		m.Power, m.Value = types.PowerOn, 1
	case "2":
		m.Power, m.Value = types.PowerUnknown, 2
	default:
		return m, fmt.Errorf("%w: power %q", types.ErrMalformedFrame, m.Raw)
	}
	return m, nil
}

func parseLabels(m Message, kind Kind) (Message, error) {
	m.Kind = kind
	fields, err := Split(m.Raw)
	if err != nil {
		return m, err
	}
	m.Labels = make(map[int]string)
	// fields[1] 是标题（"Turnouts}|{Turnout"）
	for i := 2; i < len(fields); i++ {
		f := fields[i]
		if len(f) < 2 {
			continue
		}
		v, err := strconv.Atoi(f[1])
		if err != nil {
			continue
		}
		m.Labels[v] = f[0]
	}
	return m, nil
}

func parseList(m Message, kind Kind) (Message, error) {
	m.Kind = kind
	fields, err := Split(m.Raw)
	if err != nil {
		return m, err
	}
	for _, f := range fields[1:] {
		if len(f) == 0 || f[0] == "" {
			continue
		}
		it := ListItem{SysName: f[0], UserName: f[0]}
		if len(f) > 1 && f[1] != "" {
			it.UserName = f[1]
		}
		if len(f) > 2 {
			it.State, _ = strconv.Atoi(f[2])
		}
		m.Items = append(m.Items, it)
	}
	return m, nil
}

func parseAction(m Message, kind Kind) (Message, error) {
	m.Kind = kind
	if len(m.Raw) < 5 {
		return m, fmt.Errorf("%w: %q", types.ErrMalformedFrame, m.Raw)
	}
	m.Action = m.Raw[3]
	m.Name = m.Raw[4:]
	return m, nil
}

func parseClock(m Message) (Message, error) {
	m.Kind = KindFastClock
	body := m.Raw[3:]
	secText, rateText, _ := strings.Cut(body, ActionSep)
	secs, err := strconv.ParseUint(secText, 10, 64)
	if err != nil {
		return m, fmt.Errorf("%w: clock %q", types.ErrMalformedFrame, m.Raw)
	}
	m.Clock.Seconds = uint32(secs % 86400)
	if rateText != "" {
		m.Clock.Rate, err = strconv.ParseFloat(rateText, 64)
		if err != nil {
			return m, fmt.Errorf("%w: clock rate %q", types.ErrMalformedFrame, rateText)
		}
	}
	return m, nil
}

func parseHeartbeat(m Message) (Message, error) {
	switch m.Raw {
	case "*":
		m.Kind = KindHeartbeat
	case "*+":
		m.Kind = KindHeartbeatOn
	case "*-":
		m.Kind = KindHeartbeatOff
	default:
		v, err := strconv.Atoi(m.Raw[1:])
		if err != nil || v < 0 {
			return m, fmt.Errorf("%w: heartbeat %q", types.ErrMalformedFrame, m.Raw)
		}
		m.Kind = KindHeartbeatInterval
		m.Value = v
	}
	return m, nil
}

// ============================================================================
//                              状态映射
// ============================================================================

// RouteStateCode 进路状态的 WiThrottle 数字
func RouteStateCode(s types.RouteState) int {
	switch s {
	case types.RouteConfirmed:
		return 2
	case types.RouteIdle:
		return 4
	case types.RouteInProgress, types.RouteArmed:
		return 8
	default:
		return 0
	}
}

// RouteStateFromCode WiThrottle 数字转进路状态
func RouteStateFromCode(code int) types.RouteState {
	switch code {
	case 2:
		return types.RouteConfirmed
	case 4:
		return types.RouteIdle
	case 8:
		return types.RouteInProgress
	default:
		return types.RouteFailed
	}
}

// TurnoutStateFromCode WiThrottle 数字转道岔状态，未知数字视为 Unknown
func TurnoutStateFromCode(code int) types.TurnoutState {
	st := types.TurnoutState(code)
	if !st.Valid() {
		return types.TurnoutUnknown
	}
	return st
}
