package dispatch

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config
	Tables   *state.Tables
	Bus      *eventbus.Bus
	Reporter metrics.Reporter `optional:"true"`
	Clock    clock.Clock      `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Dispatcher     *Dispatcher
	SessionHandler interfaces.SessionHandler
	FrameHandler   interfaces.FrameHandler
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	d := New(input.Config, input.Tables, input.Bus, input.Reporter, input.Clock)
	return ModuleOutput{
		Dispatcher:     d,
		SessionHandler: d,
		FrameHandler:   d,
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	Dispatcher *Dispatcher
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Dispatcher.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.Dispatcher.Stop(ctx)
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "dispatch"
	// Description 模块描述
	Description = "协议分发器：解析帧、修改共享表、按目标协议重新编码"
)
