// Package interfaces 定义 MiniThrottle 公共接口
//
// 本文件定义上游会话与帧处理接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// Upstream 定义当前上游会话
type Upstream interface {
	// Send 向指令站发送一帧，未连接时返回 types.ErrNotConnected
	Send(ctx context.Context, frame string) error

	// Protocol 返回已识别的协议
	Protocol() types.Protocol

	// Connected 是否已连接且协议已确定
	Connected() bool
}

// FrameHandler 定义入站帧处理
type FrameHandler interface {
	// HandleFrame 处理一帧，src 标识帧来自上游还是某个中继客户端
	HandleFrame(ctx context.Context, src types.Source, frame string)
}

// SessionHandler 定义上游会话生命周期回调
type SessionHandler interface {
	FrameHandler

	// SessionStarted 协议识别完成后调用
	SessionStarted(ctx context.Context, proto types.Protocol)

	// SessionEnded 会话结束后调用
	SessionEnded(ctx context.Context)
}
