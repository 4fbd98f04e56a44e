package diag

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/connmgr"
	"github.com/dep2p/go-minithrottle/internal/core/dispatch"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/fastclock"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Bus        *eventbus.Bus          `optional:"true"`
	Manager    *connmgr.Manager       `optional:"true"`
	FastClock  *fastclock.Service     `optional:"true"`
	Store      interfaces.ConfigStore `optional:"true"`
	Metrics    *metrics.Metrics       `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Console *Console
	Server  *Server
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	var (
		link     LinkStatus
		clk      FastClock
		counters Counters
	)
	// 可选依赖为 nil 指针时不能直接装入接口
	if input.Manager != nil {
		link = input.Manager
	}
	if input.FastClock != nil {
		clk = input.FastClock
	}
	if input.Metrics != nil {
		counters = input.Metrics
	}
	console := NewConsole(input.Dispatcher, link, clk, input.Store, counters)
	return ModuleOutput{
		Console: console,
		Server:  New(ConfigFromUnified(input.Config), console, input.Bus),
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("diag",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Server *Server
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Server.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.Server.Stop(ctx)
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
	Name = "diag"
	// Description 模块描述
	Description = "诊断监听与文本控制台：有界会话、诊断行推送、布局与配置命令"
)
