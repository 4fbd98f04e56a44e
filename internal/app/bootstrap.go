// Package app 提供网关应用编排层
//
// app 包负责：
// - 从配置存储加载配置并校验
// - fx 模块组装
// - 模块之间的回调接线
// - 生命周期管理
package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dep2p/go-minithrottle/internal/config"
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
	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

var log = logger.Logger("app")

// Bootstrap 应用引导程序
//
// Bootstrap 负责：
// - 打开配置存储并加载配置
// - 组装 fx 模块
// - 管理应用生命周期
type Bootstrap struct {
	opts   *options
	config *config.Config
	store  *storage.Store

	fxApp   *fx.App
	runtime *Runtime
	started bool
}

// NewBootstrap 创建引导程序
//
// 配置来自存储，命令行覆盖项随后写入。校验失败时返回的错误
// 满足 errors.Is(err, config.ErrStartupConflict) 当且仅当存在启动冲突。
func NewBootstrap(opts ...Option) (*Bootstrap, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(config.StorageConfig{Dir: o.dataDir})
	if err != nil {
		return nil, fmt.Errorf("打开配置存储失败: %w", err)
	}

	cfg := config.Load(store)
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	return &Bootstrap{
		opts:   o,
		config: cfg,
		store:  store,
	}, nil
}

// Config 返回生效的配置
func (b *Bootstrap) Config() *config.Config {
	return b.config
}

// Build 组装 fx 应用（不启动）
func (b *Bootstrap) Build() (*Runtime, error) {
	if b.fxApp != nil {
		return b.runtime, nil
	}

	b.setupLogging()

	rt := &Runtime{Config: b.config, stop: b.Stop}
	modules := b.setupModules()
	modules = append(modules, fx.Invoke(injectRuntime(rt)))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		_ = b.store.Close()
		return nil, fmt.Errorf("组装模块失败: %w", err)
	}

	b.fxApp = app
	b.runtime = rt
	return rt, nil
}

// Start 组装并启动全部模块
func (b *Bootstrap) Start(ctx context.Context) (*Runtime, error) {
	rt, err := b.Build()
	if err != nil {
		return nil, err
	}
	if b.started {
		return rt, nil
	}

	startCtx, cancel := context.WithTimeout(ctx, b.opts.startTimeout)
	defer cancel()

	if err := b.fxApp.Start(startCtx); err != nil {
		log.Error("启动失败", "err", err)
		return nil, fmt.Errorf("启动应用失败: %w", err)
	}
	b.started = true

	log.Info("网关已启动",
		"name", b.config.Name,
		"upstream", b.config.Upstream.Transport,
		"relay", b.config.Relay.Mode,
		"diag", b.config.Diag.Enabled)
	return rt, nil
}

// Stop 停止应用
func (b *Bootstrap) Stop(ctx context.Context) error {
	if b.fxApp == nil || !b.started {
		// 存储在 fx 停止钩子中关闭；未启动时由这里关闭
		return b.store.Close()
	}
	b.started = false

	stopCtx, cancel := context.WithTimeout(ctx, b.opts.stopTimeout)
	defer cancel()

	// fx 停止后存储已关闭，再次 Close 为空操作
	return multierr.Append(b.fxApp.Stop(stopCtx), b.store.Close())
}

// ============================================================================
//                              模块组装
// ============================================================================

// setupModules 组装所有 fx 模块
func (b *Bootstrap) setupModules() []fx.Option {
	modules := []fx.Option{
		// 配置（Tier 0）
		b.setupConfigModule(),

		// 基础层（Tier 1）
		FoundationModules(),

		// 上游链路（Tier 2）
		LinkModules(),

		// 协议服务（Tier 3）
		ServiceModules(),
	}

	// 中继扇出（Tier 4，可选）
	if b.config.Relay.Enabled() {
		modules = append(modules,
			fx.Provide(provideRelayHandler),
			RelayModule(),
		)
	}

	// 诊断监听（Tier 5，可选）
	if b.config.Diag.Enabled {
		modules = append(modules, DiagModule())
	}

	// 本地自省（可选）
	if b.config.Metrics.IntrospectAddr != "" {
		modules = append(modules, IntrospectModule())
	}

	// 模块回调接线与状态显示
	modules = append(modules,
		fx.Provide(provideDisplay(b.opts)),
		fx.Invoke(wireDispatcher),
		fx.Invoke(registerUpdatePump),
	)

	// 用户扩展
	if len(b.opts.userFxOptions) > 0 {
		modules = append(modules, b.opts.userFxOptions...)
	}

	// 禁用 Fx 日志输出（避免干扰网关日志）
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)
	return modules
}

// setupConfigModule 配置模块
func (b *Bootstrap) setupConfigModule() fx.Option {
	opts := []fx.Option{
		fx.Supply(b.config),
		fx.Supply(b.store),
		fx.Provide(func() clock.Clock { return b.opts.clock }),
	}
	if b.opts.dialer != nil {
		opts = append(opts, fx.Provide(func() interfaces.Dialer { return b.opts.dialer }))
	}
	return fx.Options(opts...)
}

// setupLogging 按配置的调试等级设置日志级别
func (b *Bootstrap) setupLogging() {
	logger.SetGlobalLevel(logger.LevelFromDebug(b.config.Log.DebugLevel))
}

// ============================================================================
//                              接线
// ============================================================================

// provideRelayHandler 分发器同时处理中继客户端的帧
func provideRelayHandler(d *dispatch.Dispatcher) relay.Handler {
	return d
}

// wireInput 接线所需组件
type wireInput struct {
	fx.In

	Dispatcher *dispatch.Dispatcher
	Manager    *connmgr.Manager
	Liveness   *liveness.Service
	FastClock  *fastclock.Service
	Fanout     interfaces.Fanout `optional:"true"`
}

// wireDispatcher 把上游、中继、快钟和保活接到分发器
//
// 这些组件互相引用，只能在构造完成后通过 setter 连接。
func wireDispatcher(in wireInput) {
	in.Dispatcher.SetUpstream(in.Manager)
	if in.Fanout != nil {
		in.Dispatcher.SetFanout(in.Fanout)
	}
	in.Dispatcher.SetClock(in.FastClock)
	in.Dispatcher.SetHeartbeat(in.Liveness)
}

// runtimeParams Runtime 注入参数
type runtimeParams struct {
	fx.In

	Store      interfaces.ConfigStore
	Bus        *eventbus.Bus
	Tables     *state.Tables
	Metrics    *metrics.Metrics
	Dispatcher *dispatch.Dispatcher
	Manager    *connmgr.Manager
	Liveness   *liveness.Service
	FastClock  *fastclock.Service
	Display    interfaces.Display

	Relay      *relay.Server      `optional:"true"`
	Diag       *diag.Server       `optional:"true"`
	Introspect *introspect.Server `optional:"true"`
}

// injectRuntime 创建 Runtime 注入函数
func injectRuntime(rt *Runtime) interface{} {
	return func(p runtimeParams) {
		rt.Store = p.Store
		rt.Bus = p.Bus
		rt.Tables = p.Tables
		rt.Metrics = p.Metrics
		rt.Dispatcher = p.Dispatcher
		rt.Manager = p.Manager
		rt.Liveness = p.Liveness
		rt.FastClock = p.FastClock
		rt.Display = p.Display
		rt.Relay = p.Relay
		rt.Diag = p.Diag
		rt.Introspect = p.Introspect
	}
}
