// Package types 定义 MiniThrottle 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 minithrottle 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 职能
//
// pkg/types 的职能是定义 **Go 内部数据结构**：
//   - 模块间数据传递（机车、道岔、进路、中继连接）
//   - 更新通知（Change）与本地输入事件（InputEvent）
//   - 公共错误定义
//
// # 与协议包的区别
//
// pkg/types 定义内存结构，
// internal/core/protocol 定义 WiThrottle / DCC-Ex 的线路格式。
//
// # 文件组织
//
//   - enums.go   - Protocol, RelayMode, Direction, TurnoutState, RouteState, PowerState, ConnState
//   - loco.go    - Locomotive 及地址辅助函数
//   - layout.go  - Turnout, Route, RouteStep
//   - relay.go   - RelayConnection, Source
//   - events.go  - Change, InputEvent, CVResult, FastClockTime
//   - errors.go  - 公共错误定义
package types
