// Package interfaces 定义 MiniThrottle 公共接口
//
// 本文件定义状态显示接口。
package interfaces

// Display 定义状态显示（屏幕、控制台等）
type Display interface {
	// Status 显示若干行状态文本
	Status(lines ...string)
}
