// Package interfaces 定义 MiniThrottle 公共接口
//
// 各核心模块之间只通过这里的接口相互依赖，
// 具体实现位于 internal/core 下对应的包中。
//
// # 文件组织
//
//   - link.go     - Link, Dialer（上游链路）
//   - upstream.go - Upstream, SessionHandler, FrameHandler
//   - relay.go    - Fanout（中继扇出）
//   - storage.go  - ConfigStore（持久化配置）
//   - display.go  - Display（状态显示）
package interfaces
