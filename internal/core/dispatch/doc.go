// Package dispatch 实现协议分发器
//
// Dispatcher 解析来自上游或中继客户端的一帧，在对应共享表的锁内完成修改，
// 释放锁后再产生出站帧。转换总是经由共享表完成：
//
//	上游帧 -> 表修改 -> Change -> 中继按客户端协议重新编码
//
// 从不在两种协议之间直接改写帧。
//
// # 来源
//
//   - types.SourceUpstream：按已识别的上游协议解析（WiThrottle 客户端角色 / DCC-Ex 客户端角色）
//   - types.SourceRelay：按中继模式解析（WiThrottle 服务器角色 / DCC-Ex 指令站角色）
//   - 本地 API：输入事件与控制台调用 SetSpeed、AcquireLoco、RouteInitiate 等
//
// # 手柄字母
//
// 上游为 WiThrottle 时，本地手柄 i 使用字母 'A'+i，中继槽位 s 使用 'a'+s，
// 上游回显的占用、释放、抢占请求据此路由回发起方。
//
// # 去重
//
// 未改变表内容的更新不产生广播；对请求方的直接应答照常发送。
package dispatch
