// Package app 提供模块集合清单
//
// modulesets.go 集中维护"哪些模块属于哪一层"，是 Bootstrap 组装的唯一模块来源。
package app

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/core/connmgr"
	"github.com/dep2p/go-minithrottle/internal/core/diag"
	"github.com/dep2p/go-minithrottle/internal/core/dispatch"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/fastclock"
	"github.com/dep2p/go-minithrottle/internal/core/introspect"
	"github.com/dep2p/go-minithrottle/internal/core/liveness"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/relay"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/internal/core/storage"
)

// ============================================================================
//                              固定必选模块集合
// ============================================================================

// FoundationModules 基础层模块组合 (Tier 1)
//
// 配置存储、指标、事件队列和共享状态表，其他模块都依赖它们。
func FoundationModules() fx.Option {
	return fx.Options(
		storage.Module(),
		metrics.Module(),
		eventbus.Module(),
		state.Module(),
	)
}

// LinkModules 上游链路模块组合 (Tier 2)
//
// 连接管理与保活。
func LinkModules() fx.Option {
	return fx.Options(
		connmgr.Module(),
		liveness.Module(),
	)
}

// ServiceModules 协议服务模块组合 (Tier 3)
//
// 分发器与快钟。
func ServiceModules() fx.Option {
	return fx.Options(
		dispatch.Module(),
		fastclock.Module(),
	)
}

// ============================================================================
//                              可选模块单模块入口
// ============================================================================

// RelayModule 中继扇出模块
//
// 由 Bootstrap 根据 config.Relay.Mode 决定是否加载。
func RelayModule() fx.Option {
	return relay.Module()
}

// DiagModule 诊断监听模块
//
// 由 Bootstrap 根据 config.Diag.Enabled 决定是否加载。
func DiagModule() fx.Option {
	return diag.Module()
}

// IntrospectModule 本地自省模块
//
// 由 Bootstrap 根据 config.Metrics.IntrospectAddr 决定是否加载。
func IntrospectModule() fx.Option {
	return introspect.Module()
}

// ============================================================================
//                              组合模块集合
// ============================================================================

// AllModules 所有模块组合（不按配置裁剪）
func AllModules() fx.Option {
	return fx.Options(
		FoundationModules(),
		LinkModules(),
		ServiceModules(),
		RelayModule(),
		DiagModule(),
		IntrospectModule(),
	)
}
