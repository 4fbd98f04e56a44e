package relay

import "errors"

// 中继服务错误定义
var (
	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("relay: service closed")

	// ErrNoHandler 未设置帧处理器
	ErrNoHandler = errors.New("relay: no handler set")

	// ErrQueueFull 客户端出站队列已满
	ErrQueueFull = errors.New("relay: client queue full")
)
