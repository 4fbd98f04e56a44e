package metrics

import "github.com/dep2p/go-minithrottle/pkg/types"

// Reporter 提供记录和检索指标的方法
//
// 连接管理、分发器与中继服务通过 Reporter 上报，
// 控制台通过读取方法展示统计。
type Reporter interface {
	// LogFrameIn 记录一帧入站
	LogFrameIn(src types.Source)

	// LogFrameOut 记录一帧出站
	LogFrameOut(dst types.Source)

	// LogDropped 记录一帧被丢弃及原因
	LogDropped(reason string)

	// LogLockTimeout 记录一次锁超时
	LogLockTimeout()

	// LogRoute 记录一次本地进路执行结果
	LogRoute(result types.RouteState)

	// LogReconnect 记录一次上游重连
	LogReconnect()

	// LogRelayRefused 记录一次中继拒绝
	LogRelayRefused()

	// SetConnState 更新上游连接状态
	SetConnState(s types.ConnState)

	// SetRelayClients 更新中继客户端数与历史最高值
	SetRelayClients(n, highWater int)

	// Totals 返回总帧数统计
	Totals() Stats

	// BySource 返回按来源分类的帧统计
	BySource() map[string]Stats

	// Dropped 返回按原因分类的丢弃计数
	Dropped() map[string]int64
}

// 确保 Metrics 实现 Reporter 接口
var _ Reporter = (*Metrics)(nil)

// 丢弃原因
const (
	DropMalformed   = "malformed"
	DropUnknown     = "unknown"
	DropLockTimeout = "lock-timeout"
	DropRateLimit   = "rate-limit"
	DropQueueFull   = "queue-full"
	DropOversize    = "oversize"
	DropNotConnect  = "not-connected"
)

// SourceLabel 返回来源的指标标签（不含槽位号）
func SourceLabel(s types.Source) string {
	switch s.Kind {
	case types.SourceUpstream:
		return "upstream"
	case types.SourceRelay:
		return "relay"
	default:
		return "local"
	}
}
