// Package connmgr 实现上游连接管理器
//
// 连接管理器独占唯一的上游会话（TCP 或串口），负责：
//
//  1. 建立链路 - 通过 interfaces.Dialer（静态地址、mDNS 发现或串口）
//  2. 协议识别 - 在识别窗口内等待第一帧可识别的横幅
//  3. 会话监督 - 读循环把每帧交给分发器，写入经速率限制
//  4. 断线重连 - 指数退避，持续连接一段时间后退避复位
//
// # 状态机
//
//	Disconnected → Connecting → Detecting → Connected → Disconnected
//
// Connecting 拨号成功后进入 Detecting；识别窗口内没有可识别帧时回到
// Disconnected。Connected 状态下任何 I/O 错误或 Kill 调用都会结束会话。
//
// # 快速开始
//
//	mgr := connmgr.New(connmgr.ConfigFromUnified(cfg), dialer, dispatcher, nil, nil)
//	mgr.Start(ctx)
//	defer mgr.Stop(ctx)
//
//	if mgr.Connected() {
//	    mgr.Send(ctx, "<s>")
//	}
//
// 所有 I/O 失败都不是致命错误，管理循环一直运行直到 Stop。
package connmgr
