// Package metrics 提供监控指标收集
//
// metrics 模块维护两套视图：
//   - FrameCounter：内存中的收发帧计数与 60 秒滑动速率，供控制台 "show status" 使用
//   - Prometheus 收集器：注册到独立 Registry，配置 metricsAddr 时通过 /metrics 导出
//
// # 快速开始
//
//	m := metrics.New()
//	m.LogFrameIn(types.UpstreamSource())
//	m.LogDropped(metrics.DropMalformed)
//
//	stats := m.Totals()
//	fmt.Printf("In: %d, Out: %d\n", stats.TotalIn, stats.TotalOut)
//
// # 并发安全
//
// 所有方法都是并发安全的，计数使用原子操作，速率计内部加锁。
package metrics
