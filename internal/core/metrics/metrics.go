package metrics

import (
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("metrics")

const namespace = "minithrottle"

// Metrics 进程指标
//
// 同时维护内存帧计数（供控制台展示）与 Prometheus 收集器（供 /metrics 导出）。
type Metrics struct {
	*FrameCounter

	registry *prometheus.Registry

	framesIn      *prometheus.CounterVec
	framesOut     *prometheus.CounterVec
	framesDropped *prometheus.CounterVec
	lockTimeouts  prometheus.Counter
	routes        *prometheus.CounterVec
	reconnects    prometheus.Counter
	relayRefused  prometheus.Counter
	relayClients  prometheus.Gauge
	relayHigh     prometheus.Gauge
	connState     prometheus.Gauge

	reconnectN atomic.Int64
	refusedN   atomic.Int64
}

// New 创建指标集，收集器注册到独立的 Registry
func New() *Metrics {
	return NewWithClock(clock.New())
}

// NewWithClock 使用指定时钟创建指标集
func NewWithClock(c clock.Clock) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		FrameCounter: NewFrameCounterWithClock(c),
		registry:     reg,
		framesIn: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Frames received, by source.",
		}, []string{"source"}),
		framesOut: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_out_total",
			Help:      "Frames sent, by destination.",
		}, []string{"dest"}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded, by reason.",
		}, []string{"reason"}),
		lockTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Table lock acquisitions that timed out.",
		}),
		routes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_runs_total",
			Help:      "Local route executions, by final state.",
		}, []string{"result"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_reconnects_total",
			Help:      "Upstream connection attempts after the first.",
		}),
		relayRefused: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_refused_total",
			Help:      "Relay sessions refused because the pool was full.",
		}),
		relayClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_clients",
			Help:      "Connected relay clients.",
		}),
		relayHigh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_clients_high_water",
			Help:      "Highest number of concurrently connected relay clients.",
		}),
		connState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_state",
			Help:      "Upstream connection state (0 disconnected, 1 connecting, 2 detecting, 3 connected).",
		}),
	}
	return m
}

// Registry 返回 Prometheus Registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// LogFrameIn 记录一帧入站
func (m *Metrics) LogFrameIn(src types.Source) {
	label := SourceLabel(src)
	m.In(label)
	m.framesIn.WithLabelValues(label).Inc()
}

// LogFrameOut 记录一帧出站
func (m *Metrics) LogFrameOut(dst types.Source) {
	label := SourceLabel(dst)
	m.Out(label)
	m.framesOut.WithLabelValues(label).Inc()
}

// LogDropped 记录一帧被丢弃
func (m *Metrics) LogDropped(reason string) {
	m.Drop(reason)
	m.framesDropped.WithLabelValues(reason).Inc()
}

// LogLockTimeout 记录一次锁超时
func (m *Metrics) LogLockTimeout() {
	m.lockTimeouts.Inc()
}

// LogRoute 记录进路执行结果
func (m *Metrics) LogRoute(result types.RouteState) {
	m.routes.WithLabelValues(result.String()).Inc()
}

// LogReconnect 记录一次重连
func (m *Metrics) LogReconnect() {
	m.reconnectN.Add(1)
	m.reconnects.Inc()
}

// Reconnects 返回累计重连次数
func (m *Metrics) Reconnects() int64 { return m.reconnectN.Load() }

// LogRelayRefused 记录一次中继拒绝
func (m *Metrics) LogRelayRefused() {
	m.refusedN.Add(1)
	m.relayRefused.Inc()
}

// RelayRefused 返回累计拒绝的中继会话数
func (m *Metrics) RelayRefused() int64 { return m.refusedN.Load() }

// SetConnState 更新上游连接状态
func (m *Metrics) SetConnState(s types.ConnState) {
	m.connState.Set(float64(s))
}

// SetRelayClients 更新中继客户端数
func (m *Metrics) SetRelayClients(n, highWater int) {
	m.relayClients.Set(float64(n))
	m.relayHigh.Set(float64(highWater))
}
