// Package interfaces 定义 MiniThrottle 公共接口
//
// 本文件定义中继扇出接口。
package interfaces

import "github.com/dep2p/go-minithrottle/pkg/types"

// Fanout 定义中继服务向客户端推送的能力
//
// 所有方法均不阻塞；出站队列满的客户端会被断开。
type Fanout interface {
	// Active 中继服务是否在运行
	Active() bool

	// Protocol 返回中继客户端使用的协议
	Protocol() types.Protocol

	// Publish 把一条变更编码后推送给所有客户端
	Publish(change types.Change)

	// SendTo 向指定槽位直接发送帧
	SendTo(slot int, frames ...string)

	// Bind 记录客户端用哪个手柄字母占用了机车
	Bind(slot int, throttle byte, id uint16)

	// Unbind 解除绑定
	Unbind(slot int, throttle byte, id uint16)

	// Bound 返回客户端某手柄字母下占用的机车
	Bound(slot int, throttle byte) []uint16

	// Disconnect 断开指定槽位
	Disconnect(slot int)
}
