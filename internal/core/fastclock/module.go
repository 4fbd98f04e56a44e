package fastclock

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config
	Clock    clock.Clock         `optional:"true"`
	Bus      *eventbus.Bus       `optional:"true"`
	Fanout   interfaces.Fanout   `optional:"true"`
	Upstream interfaces.Upstream `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Service *Service
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	return ModuleOutput{
		Service: New(ConfigFromUnified(input.Config), input.Clock, input.Bus, input.Fanout, input.Upstream),
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("fastclock",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Service *Service
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: input.Service.Start,
		OnStop:  input.Service.Stop,
	})
}
