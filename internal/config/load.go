package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              持久化配置项
// ============================================================================

// 持久化键名
const (
	KeyName           = "tname"
	KeyServer         = "server"
	KeySerialDevice   = "serialDev"
	KeyDefaultProto   = "defaultProto"
	KeyMDNS           = "mdns"
	KeyRelayMode      = "relayMode"
	KeyRelayPort      = "relayPort"
	KeyMaxRelay       = "maxRelay"
	KeyRelayKeepAlive = "relayKeepAlive"
	KeyDiagPort       = "diagPort"
	KeyRouteDelay     = "routeDelay"
	KeyRouteError     = "dccRtError"
	KeyTrackPower     = "dccPower"
	KeyFastClockDCC   = "fastclock2dcc"
	KeyFastClockHour  = "fc_hour"
	KeyFastClockMin   = "fc_min"
	KeyFastClockRate  = "fc_rate"
	KeyLatchDefault   = "FLatchDefault"
	KeyLeadDefault    = "FLeadDefault"
	KeyDebugLevel     = "debuglevel"
	KeyShowPackets    = "showPackets"
	KeyShowKeepAlive  = "showKeepAlive"
)

// SettingKind 配置项值类型
type SettingKind int

const (
	// SettingInt 整数
	SettingInt SettingKind = iota
	// SettingString 字符串
	SettingString
)

// Setting 可由控制台修改的配置项
type Setting struct {
	Key         string
	Kind        SettingKind
	Min, Max    int
	Description string
}

// Settings 全部配置项（按键名排序）
var Settings = []Setting{
	{KeyDebugLevel, SettingInt, 0, 3, "Debug level"},
	{KeyRouteError, SettingInt, 0, 1, "Stop route setup on error"},
	{KeyTrackPower, SettingInt, 0, int(types.TrackJoin), "Outputs to enable on power-on"},
	{KeyDefaultProto, SettingInt, int(types.ProtocolWiThrottle), int(types.ProtocolDCCEx), "Preferred protocol"},
	{KeyDiagPort, SettingInt, 10, 65500, "Diagnostic port"},
	{KeyLatchDefault, SettingInt, 0, 1<<types.MaxFunctions - 1, "Default latching functions"},
	{KeyLeadDefault, SettingInt, 0, 1<<types.MaxFunctions - 1, "Default lead-only functions"},
	{KeyFastClockDCC, SettingInt, 0, 1, "Send fastclock to DCC-Ex"},
	{KeyFastClockHour, SettingInt, 0, 23, "Fastclock hour"},
	{KeyFastClockMin, SettingInt, 0, 59, "Fastclock minute"},
	{KeyFastClockRate, SettingInt, 0, MaxFastClockRate, "Fastclock speed-up rate"},
	{KeyMaxRelay, SettingInt, 0, AbsoluteMaxRelay, "Max nodes to relay"},
	{KeyMDNS, SettingInt, 0, 1, "mDNS search enabled"},
	{KeyRelayKeepAlive, SettingInt, 1, 3600, "Relay keepalive seconds"},
	{KeyRelayMode, SettingInt, 0, 2, "Relay mode"},
	{KeyRelayPort, SettingInt, 0, 65534, "Relay port"},
	{KeyRouteDelay, SettingInt, 0, 5, "Delay between route steps"},
	{KeySerialDevice, SettingString, 0, 64, "Serial device"},
	{KeyServer, SettingString, 0, 128, "Command station host:port"},
	{KeyShowKeepAlive, SettingInt, 0, 1, "Show keepalive frames"},
	{KeyShowPackets, SettingInt, 0, 1, "Show protocol frames"},
	{KeyName, SettingString, 4, 32, "Device name"},
}

func init() {
	sort.Slice(Settings, func(i, j int) bool {
		return strings.ToLower(Settings[i].Key) < strings.ToLower(Settings[j].Key)
	})
}

// LookupSetting 按键名查找配置项
func LookupSetting(key string) (Setting, bool) {
	for _, s := range Settings {
		if s.Key == key {
			return s, true
		}
	}
	return Setting{}, false
}

// Check 检查取值是否合法
func (s Setting) Check(value string) error {
	switch s.Kind {
	case SettingInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", s.Key, value)
		}
		if n < s.Min || n > s.Max {
			return fmt.Errorf("%s: %d out of range %d..%d", s.Key, n, s.Min, s.Max)
		}
	default:
		if len(value) < s.Min || len(value) > s.Max {
			return fmt.Errorf("%s: length must be %d..%d", s.Key, s.Min, s.Max)
		}
	}
	return nil
}

// Put 校验后写入存储
func (s Setting) Put(store interfaces.ConfigStore, value string) error {
	if err := s.Check(value); err != nil {
		return err
	}
	return store.PutString(s.Key, value)
}

// ============================================================================
//                              加载
// ============================================================================

// Load 从存储读取配置，缺失的键取默认值
//
// 越界的值被收敛到合法范围，与原始设备的行为一致。
func Load(store interfaces.ConfigStore) *Config {
	c := NewConfig()

	c.Name = store.GetString(KeyName, c.Name)

	c.Upstream.Address = store.GetString(KeyServer, c.Upstream.Address)
	c.Upstream.SerialDevice = store.GetString(KeySerialDevice, c.Upstream.SerialDevice)
	if c.Upstream.SerialDevice != "" && c.Upstream.Address == "" {
		c.Upstream.Transport = TransportSerial
	}
	c.Upstream.PreferredProtocol = types.Protocol(store.GetInt(KeyDefaultProto, int(c.Upstream.PreferredProtocol)))
	if c.Upstream.PreferredProtocol != types.ProtocolDCCEx {
		c.Upstream.PreferredProtocol = types.ProtocolWiThrottle
	}
	if c.Upstream.Transport == TransportSerial {
		c.Upstream.PreferredProtocol = types.ProtocolDCCEx
	}
	c.Upstream.MDNS = store.GetBool(KeyMDNS, c.Upstream.MDNS)
	c.Upstream.TrackPower = types.TrackPower(clamp(store.GetInt(KeyTrackPower, int(c.Upstream.TrackPower)), 0, int(types.TrackJoin)))
	c.Upstream.ShowPackets = store.GetBool(KeyShowPackets, false)

	c.Relay.Mode = types.RelayMode(clamp(store.GetInt(KeyRelayMode, int(c.Relay.Mode)), 0, 2))
	c.Relay.Port = store.GetInt(KeyRelayPort, c.Relay.Port)
	c.Relay.MaxClients = clamp(store.GetInt(KeyMaxRelay, c.Relay.MaxClients), 0, AbsoluteMaxRelay)
	if c.Relay.MaxClients == 0 {
		c.Relay.Mode = types.NoRelay
	}
	c.Relay.KeepAlive = store.GetInt(KeyRelayKeepAlive, c.Relay.KeepAlive)

	c.Diag.Port = store.GetInt(KeyDiagPort, c.Diag.Port)

	c.Keepalive.ShowKeepAlive = store.GetBool(KeyShowKeepAlive, false)

	c.FastClock.Hour = clamp(store.GetInt(KeyFastClockHour, c.FastClock.Hour), 0, 23)
	c.FastClock.Minute = clamp(store.GetInt(KeyFastClockMin, c.FastClock.Minute), 0, 59)
	c.FastClock.Rate = float64(clamp(store.GetInt(KeyFastClockRate, int(c.FastClock.Rate)), 0, MaxFastClockRate))
	c.FastClock.SendToStation = store.GetBool(KeyFastClockDCC, c.FastClock.SendToStation)

	idx := clamp(store.GetInt(KeyRouteDelay, DefaultRouteDelayIndex), 0, len(RouteDelays)-1)
	c.Route.StepDelay = RouteDelays[idx]
	c.Route.AbortOnError = store.GetBool(KeyRouteError, c.Route.AbortOnError)

	c.Throttle.LatchDefault = uint32(store.GetInt(KeyLatchDefault, int(c.Throttle.LatchDefault)))
	c.Throttle.LeadDefault = uint32(store.GetInt(KeyLeadDefault, int(c.Throttle.LeadDefault)))

	c.Log.DebugLevel = clamp(store.GetInt(KeyDebugLevel, c.Log.DebugLevel), 0, 3)

	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
