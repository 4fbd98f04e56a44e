package state

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Tables *Tables
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) ModuleOutput {
	t := NewTables(input.Config)
	log.Debug("共享表已创建",
		"maxRelay", t.Relay.Capacity(),
		"lockTimeout", input.Config.Throttle.LockTimeout)
	return ModuleOutput{Tables: t}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("state",
		fx.Provide(ProvideServices),
	)
}

// ============================================================================
//                              模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "state"
	// Description 模块描述
	Description = "共享状态表：机车、道岔、进路、中继连接，带超时的有序锁"
)
