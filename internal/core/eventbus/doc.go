// Package eventbus 实现进程内有界事件队列
//
// 各任务之间通过固定容量的类型化队列传递事件：
//   - Updates - 共享状态变更通知（供显示与监控消费）
//   - Inputs  - 本地输入事件（编码器、键盘）
//   - Diag    - 诊断文本行（供诊断会话消费）
//   - CV      - 编程轨 CV 读写结果
//
// # 丢弃语义
//
// Emit 从不阻塞。队列满时事件被丢弃并计数，每丢弃 100 个事件
// 警告一次，避免慢消费者拖住生产者。
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//	bus.Updates.Emit(types.Change{Kind: types.ChangePower})
//
//	ch, ok, err := bus.Updates.Receive(ctx, time.Second)
//
// # Fx 模块
//
//	app := fx.New(
//	    eventbus.Module(),
//	    fx.Invoke(func(bus *eventbus.Bus) { ... }),
//	)
package eventbus
