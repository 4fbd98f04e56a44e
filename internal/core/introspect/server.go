// Package introspect 提供本地自省 HTTP 服务
//
// 该服务运行在本地端口，提供 JSON 格式的诊断信息，用于调试和监控。
// 建议绑定到 127.0.0.1，不暴露到网络。
//
// 端点：
//   - GET /debug/introspect          - 完整诊断报告 (JSON)
//   - GET /debug/introspect/link     - 上游链路
//   - GET /debug/introspect/tables   - 机车、道岔、进路
//   - GET /debug/introspect/relay    - 中继客户端
//   - GET /debug/pprof/*             - Go pprof 端点
//   - GET /health                    - 健康检查
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/dep2p/go-minithrottle/internal/core/fastclock"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// requestTimeout 单次请求读取共享表的上限
const requestTimeout = 2 * time.Second

// ============================================================================
//                              数据来源
// ============================================================================

// LinkStatus 上游链路状态
type LinkStatus interface {
	State() types.ConnState
	Server() string
	Protocol() types.Protocol
}

// Controller 分发器状态
type Controller interface {
	Power() types.PowerState
	ServerDesc() string
}

// FastClock 快钟
type FastClock interface {
	Now() types.FastClockTime
	Authoritative() bool
	Valid() bool
}

// Counters 帧统计
type Counters interface {
	Totals() metrics.Stats
	Dropped() map[string]int64
	Reconnects() int64
	RelayRefused() int64
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Tables 必需的共享状态表
	Tables *state.Tables

	// 以下均为可选
	Link       LinkStatus
	Controller Controller
	Clock      FastClock
	Counters   Counters
}

// Server 本地自省 HTTP 服务
type Server struct {
	tables     *state.Tables
	link       LinkStatus
	controller Controller
	clock      FastClock
	counters   Counters

	addr string

	server   *http.Server
	listener net.Listener

	running bool
	mu      sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		tables:     cfg.Tables,
		link:       cfg.Link,
		controller: cfg.Controller,
		clock:      cfg.Clock,
		counters:   cfg.Counters,
		addr:       addr,
	}
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()

	// 自省端点
	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/link", s.handleLink)
	mux.HandleFunc("/debug/introspect/tables", s.handleTables)
	mux.HandleFunc("/debug/introspect/relay", s.handleRelay)

	// pprof 端点
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// 健康检查
	mux.HandleFunc("/health", s.handleHealth)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("自省服务异常退出", "error", err)
		}
	}()

	s.running = true
	log.Info("自省服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error("关闭自省服务失败", "error", err)
		return err
	}

	s.running = false
	log.Info("自省服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// Report 完整诊断报告
type Report struct {
	Link      *LinkInfo   `json:"link,omitempty"`
	Power     string      `json:"power,omitempty"`
	Server    string      `json:"server,omitempty"`
	FastClock *ClockInfo  `json:"fast_clock,omitempty"`
	Frames    *FrameInfo  `json:"frames,omitempty"`
	Tables    *TablesInfo `json:"tables,omitempty"`
	Relay     *RelayInfo  `json:"relay,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
}

// LinkInfo 上游链路
type LinkInfo struct {
	State    string `json:"state"`
	Protocol string `json:"protocol"`
	Server   string `json:"server,omitempty"`
}

// ClockInfo 快钟
type ClockInfo struct {
	Time          string  `json:"time"`
	Rate          float64 `json:"rate"`
	Authoritative bool    `json:"authoritative"`
}

// FrameInfo 帧统计
type FrameInfo struct {
	In           int64            `json:"in"`
	Out          int64            `json:"out"`
	RateIn       float64          `json:"rate_in"`
	RateOut      float64          `json:"rate_out"`
	Dropped      map[string]int64 `json:"dropped,omitempty"`
	Reconnects   int64            `json:"reconnects"`
	RelayRefused int64            `json:"relay_refused"`
}

// LocoInfo 机车
type LocoInfo struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Speed     int16  `json:"speed"`
	Direction string `json:"direction"`
	Functions uint32 `json:"functions"`
	Throttle  int    `json:"throttle,omitempty"`
	Owned     bool   `json:"owned"`
	RelaySlot int    `json:"relay_slot"`
}

// TurnoutInfo 道岔
type TurnoutInfo struct {
	SysName  string `json:"sys_name"`
	UserName string `json:"user_name"`
	State    string `json:"state"`
}

// RouteInfo 进路
type RouteInfo struct {
	SysName  string `json:"sys_name"`
	UserName string `json:"user_name"`
	State    string `json:"state"`
	Steps    int    `json:"steps"`
}

// TablesInfo 共享表
type TablesInfo struct {
	Locos    []LocoInfo    `json:"locos"`
	Turnouts []TurnoutInfo `json:"turnouts"`
	Routes   []RouteInfo   `json:"routes"`
}

// RelayClientInfo 中继客户端
type RelayClientInfo struct {
	Slot        int       `json:"slot"`
	SessionID   string    `json:"session_id"`
	RemoteAddr  string    `json:"remote_addr"`
	NodeName    string    `json:"node_name,omitempty"`
	Protocol    string    `json:"protocol"`
	ConnectedAt time.Time `json:"connected_at"`
	InFrames    uint64    `json:"in_frames"`
	OutFrames   uint64    `json:"out_frames"`
}

// RelayInfo 中继表
type RelayInfo struct {
	Capacity  int               `json:"capacity"`
	HighWater int               `json:"high_water"`
	Clients   []RelayClientInfo `json:"clients"`
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

// handleIntrospect 处理完整诊断请求
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	s.writeJSON(w, s.Collect(ctx))
}

// handleLink 处理上游链路请求
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.link == nil {
		http.Error(w, "Link not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.collectLink())
}

// handleTables 处理共享表请求
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := s.tables.Snapshot(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, tablesInfo(snap))
}

// handleRelay 处理中继客户端请求
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	info, err := s.collectRelay(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, info)
}

// handleHealth 处理健康检查请求
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Status:    "ok",
		Timestamp: time.Now(),
	}

	// 上游未连接时降级
	if s.link != nil && s.link.State() != types.ConnConnected {
		health.Status = "degraded"
	}

	s.writeJSON(w, health)
}

// ============================================================================
//                              辅助方法
// ============================================================================

// Collect 汇总完整诊断报告
//
// 读取某张表失败时记录错误并继续。
func (s *Server) Collect(ctx context.Context) Report {
	var rep Report
	if s.link != nil {
		rep.Link = s.collectLink()
	}
	if s.controller != nil {
		rep.Power = s.controller.Power().String()
		rep.Server = s.controller.ServerDesc()
	}
	if s.clock != nil && s.clock.Valid() {
		now := s.clock.Now()
		rep.FastClock = &ClockInfo{
			Time:          fastclock.Format(now),
			Rate:          now.Rate,
			Authoritative: s.clock.Authoritative(),
		}
	}
	if s.counters != nil {
		t := s.counters.Totals()
		rep.Frames = &FrameInfo{
			In:           t.TotalIn,
			Out:          t.TotalOut,
			RateIn:       t.RateIn,
			RateOut:      t.RateOut,
			Dropped:      s.counters.Dropped(),
			Reconnects:   s.counters.Reconnects(),
			RelayRefused: s.counters.RelayRefused(),
		}
	}

	if snap, err := s.tables.Snapshot(ctx); err != nil {
		rep.Errors = append(rep.Errors, "tables: "+err.Error())
	} else {
		rep.Tables = tablesInfo(snap)
	}
	if relay, err := s.collectRelay(ctx); err != nil {
		rep.Errors = append(rep.Errors, "relay: "+err.Error())
	} else {
		rep.Relay = relay
	}
	return rep
}

func (s *Server) collectLink() *LinkInfo {
	info := &LinkInfo{
		State:    s.link.State().String(),
		Protocol: s.link.Protocol().String(),
	}
	if s.link.State() == types.ConnConnected {
		info.Server = s.link.Server()
	}
	return info
}

func (s *Server) collectRelay(ctx context.Context) (*RelayInfo, error) {
	list, err := s.tables.Relay.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	hw, err := s.tables.Relay.HighWater(ctx)
	if err != nil {
		return nil, err
	}
	info := &RelayInfo{
		Capacity:  s.tables.Relay.Capacity(),
		HighWater: hw,
		Clients:   make([]RelayClientInfo, 0, len(list)),
	}
	for _, rc := range list {
		info.Clients = append(info.Clients, RelayClientInfo{
			Slot:        rc.Slot,
			SessionID:   rc.SessionID,
			RemoteAddr:  rc.RemoteAddr,
			NodeName:    rc.NodeName,
			Protocol:    rc.Protocol.String(),
			ConnectedAt: rc.ConnectedAt,
			InFrames:    rc.InFrames,
			OutFrames:   rc.OutFrames,
		})
	}
	return info, nil
}

func tablesInfo(snap state.Snapshot) *TablesInfo {
	info := &TablesInfo{
		Locos:    make([]LocoInfo, 0, len(snap.Locos)),
		Turnouts: make([]TurnoutInfo, 0, len(snap.Turnouts)),
		Routes:   make([]RouteInfo, 0, len(snap.Routes)),
	}
	for _, l := range snap.Locos {
		info.Locos = append(info.Locos, LocoInfo{
			Address:   l.Address(),
			Name:      l.Name,
			Speed:     l.Speed,
			Direction: l.Direction.String(),
			Functions: l.Functions,
			Throttle:  l.Throttle,
			Owned:     l.Owned,
			RelaySlot: l.RelaySlot,
		})
	}
	for _, t := range snap.Turnouts {
		info.Turnouts = append(info.Turnouts, TurnoutInfo{
			SysName:  t.SysName,
			UserName: t.UserName,
			State:    t.State.String(),
		})
	}
	for _, r := range snap.Routes {
		info.Routes = append(info.Routes, RouteInfo{
			SysName:  r.SysName,
			UserName: r.UserName,
			State:    r.State.String(),
			Steps:    len(r.Steps),
		})
	}
	return info
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		log.Error("JSON 编码失败", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
