package introspect

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/connmgr"
	"github.com/dep2p/go-minithrottle/internal/core/dispatch"
	"github.com/dep2p/go-minithrottle/internal/core/fastclock"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/state"
)

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Config     *config.Config
	Tables     *state.Tables
	Manager    *connmgr.Manager     `optional:"true"`
	Dispatcher *dispatch.Dispatcher `optional:"true"`
	FastClock  *fastclock.Service   `optional:"true"`
	Metrics    *metrics.Metrics     `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// ProvideServer 提供自省服务
func ProvideServer(in ModuleInput) ModuleOutput {
	cfg := Config{
		Addr:   in.Config.Metrics.IntrospectAddr,
		Tables: in.Tables,
	}
	// 可选依赖为 nil 指针时不能直接装入接口
	if in.Manager != nil {
		cfg.Link = in.Manager
	}
	if in.Dispatcher != nil {
		cfg.Controller = in.Dispatcher
	}
	if in.FastClock != nil {
		cfg.Clock = in.FastClock
	}
	if in.Metrics != nil {
		cfg.Counters = in.Metrics
	}
	return ModuleOutput{
		Server: New(cfg),
	}
}

// Module 返回 introspect fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(ProvideServer),
		fx.Invoke(func(lc fx.Lifecycle, s *Server) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return s.Start(ctx)
				},
				OnStop: func(ctx context.Context) error {
					return s.Stop(ctx)
				},
			})
		}),
	)
}
