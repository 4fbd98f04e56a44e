package connmgr

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/transport"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config   *config.Config
	Handler  interfaces.SessionHandler
	Dialer   interfaces.Dialer  `optional:"true"`
	Display  interfaces.Display `optional:"true"`
	Reporter metrics.Reporter   `optional:"true"`
	Clock    clock.Clock        `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Manager  *Manager
	Upstream interfaces.Upstream
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	dialer := input.Dialer
	if dialer == nil {
		d, err := transport.NewDialer(input.Config.Upstream)
		if err != nil {
			return ModuleOutput{}, err
		}
		dialer = d
	}

	mgr := New(ConfigFromUnified(input.Config), dialer, input.Handler, input.Display, input.Reporter, input.Clock)
	return ModuleOutput{
		Manager:  mgr,
		Upstream: mgr,
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("connmgr",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Manager *Manager
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Manager.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.Manager.Stop(ctx)
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
	Name = "connmgr"
	// Description 模块描述
	Description = "上游连接管理：拨号、协议识别、会话监督与退避重连"
)
