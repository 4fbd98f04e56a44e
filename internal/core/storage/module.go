package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
//
// Store 由调用方预先打开：配置本身需要先从存储加载。
type ModuleInput struct {
	fx.In

	Store *Store
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	ConfigStore interfaces.ConfigStore
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	return ModuleOutput{ConfigStore: input.Store}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC    fx.Lifecycle
	Store *Store
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			log.Debug("关闭配置存储")
			return input.Store.Close()
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
	Name = "storage"
	// Description 模块描述
	Description = "基于 BadgerDB 的设备配置存储"
)
