// Package interfaces 定义 MiniThrottle 公共接口
//
// 本文件定义上游链路接口。
package interfaces

import "context"

// Link 定义到指令站的双向帧链路
//
// 帧不含行终止符。实现必须允许 ReadFrame 与 WriteFrame 并发调用。
type Link interface {
	// ReadFrame 读取下一帧，阻塞直到有数据、ctx 结束或链路关闭
	ReadFrame(ctx context.Context) (string, error)

	// WriteFrame 写出一帧
	WriteFrame(ctx context.Context, frame string) error

	// RemoteAddr 返回对端描述
	RemoteAddr() string

	// Close 关闭链路，使阻塞中的 ReadFrame 返回
	Close() error
}

// Dialer 定义上游链路的建立方式（静态地址、mDNS 发现、串口）
type Dialer interface {
	// Dial 建立链路
	Dial(ctx context.Context) (Link, error)

	// String 返回描述
	String() string
}
