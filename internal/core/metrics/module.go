package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
)

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Config *config.Config
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Metrics  *Metrics
	Reporter Reporter
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideMetrics 创建指标集
func ProvideMetrics(_ ModuleInput) ModuleOutput {
	m := New()
	return ModuleOutput{Metrics: m, Reporter: m}
}

type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Config  *config.Config
	Metrics *Metrics
}

func registerLifecycle(input lifecycleInput) {
	addr := input.Config.Metrics.Addr
	if addr == "" {
		return
	}
	srv := NewServer(addr, input.Metrics)
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			log.Debug("关闭指标服务")
			return srv.Stop(ctx)
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
	Name = "metrics"
	// Description 模块描述
	Description = "帧计数与 Prometheus 指标导出"
)
