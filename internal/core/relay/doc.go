// Package relay 实现中继扇出服务
//
// 中继服务让多个下游客户端共享唯一的上游会话。每个客户端看起来都独占
// 指令站，实际上所有请求都经分发器改写后走同一条上游链路。
//
// # 架构
//
//	┌──────────────┐  accept   ┌──────────────────────────────┐
//	│  listener    │ ────────▶ │ session (slot n)             │
//	└──────────────┘           │  reader ─▶ limiter ─▶ Handler │
//	                           │  out queue ─▶ writer          │
//	┌──────────────┐           └──────────────────────────────┘
//	│  reaper      │  静默超时 ─▶ 关闭会话、释放槽位
//	└──────────────┘
//
// # 接入
//
// 槽位从 state.RelayTable 的有界池分配。池满时按中继协议发送拒绝帧后
// 立即关闭新连接，既不阻塞也不影响已有客户端。
//
// # 扇出
//
// Publish 把一条共享表变更按客户端协议重新编码，放入各客户端的出站队列。
// 队列满或写失败只会断开该客户端。同一客户端内帧顺序不变，不同客户端之间
// 没有顺序保证。
//
// # 生命周期
//
// 会话的全部清理（通知分发器释放机车、释放槽位）都在其读协程退出时完成，
// Disconnect、超时与队列溢出只负责关闭连接。
package relay
