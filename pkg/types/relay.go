package types

import (
	"fmt"
	"time"
)

// ============================================================================
//                              RelayConnection - 中继连接
// ============================================================================

// RelayConnection 中继客户端连接记录
type RelayConnection struct {
	// Slot 槽位编号
	Slot int

	// SessionID 会话标识
	SessionID string

	// RemoteAddr 对端地址
	RemoteAddr string

	// NodeName 客户端自报名称（WiThrottle N 指令）
	NodeName string

	// Protocol 客户端协议
	Protocol Protocol

	// ConnectedAt 接入时间
	ConnectedAt time.Time

	// LastActivity 最近一次收发时间
	LastActivity time.Time

	// InFrames 入站帧数
	InFrames uint64

	// OutFrames 出站帧数
	OutFrames uint64
}

// Idle 返回距最近活动的时长
func (c RelayConnection) Idle(now time.Time) time.Duration {
	return now.Sub(c.LastActivity)
}

// ============================================================================
//                              Source - 帧来源
// ============================================================================

// SourceKind 帧来源类别
type SourceKind int

const (
	// SourceUpstream 上游指令站
	SourceUpstream SourceKind = iota
	// SourceRelay 中继客户端
	SourceRelay
	// SourceLocal 本地手柄或控制台
	SourceLocal
)

// Source 帧或变更的来源
type Source struct {
	Kind SourceKind
	Slot int
}

// UpstreamSource 上游来源
func UpstreamSource() Source { return Source{Kind: SourceUpstream, Slot: NoSlot} }

// RelaySource 中继客户端来源
func RelaySource(slot int) Source { return Source{Kind: SourceRelay, Slot: slot} }

// LocalSource 本地来源
func LocalSource() Source { return Source{Kind: SourceLocal, Slot: NoSlot} }

// String 返回来源的字符串表示
func (s Source) String() string {
	switch s.Kind {
	case SourceUpstream:
		return "upstream"
	case SourceRelay:
		return fmt.Sprintf("relay[%d]", s.Slot)
	default:
		return "local"
	}
}
