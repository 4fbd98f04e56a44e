package eventbus

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
)

// ============================================================================
// Fx 模块
// ============================================================================

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Config *config.Config
}

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Bus *Bus
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideBus),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideBus 提供 Bus 实例
func ProvideBus(input ModuleInput) Result {
	return Result{
		Bus: NewBusWithCapacity(input.Config.Diag.QueueSize),
	}
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC  fx.Lifecycle
	Bus *Bus
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			stats := input.Bus.Stats()
			log.Debug("事件队列关闭",
				"droppedUpdates", stats["updates"],
				"droppedDiag", stats["diag"])
			input.Bus.Close()
			return nil
		},
	})
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "eventbus"
	// Description 模块描述
	Description = "有界事件队列模块：状态变更、本地输入、诊断行、CV 结果"
)
