package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// App 网关应用接口
//
// App 提供应用级别的生命周期管理
type App interface {
	// Runtime 返回已启动的运行时
	Runtime() *Runtime

	// Wait 阻塞直到收到退出信号、ctx 结束或应用被停止
	Wait(ctx context.Context)

	// Stop 停止应用
	Stop() error
}

// internalApp App 的内部实现
type internalApp struct {
	bootstrap *Bootstrap
	runtime   *Runtime
	stopOnce  sync.Once
	stopped   chan struct{}
}

// RunApp 运行网关应用
//
// 这是一个便捷函数，用于运行一个完整的网关：
// - 组装并启动全部模块
// - 等待退出信号
// - 优雅关闭
//
// 示例:
//
//	b, err := app.NewBootstrap(app.WithDataDir(dir))
//	if err != nil {
//	    return err
//	}
//	a, err := app.RunApp(ctx, b)
//	if err != nil {
//	    return err
//	}
//	a.Wait(ctx)
//	return a.Stop()
func RunApp(ctx context.Context, bootstrap *Bootstrap) (App, error) {
	rt, err := bootstrap.Start(ctx)
	if err != nil {
		_ = bootstrap.Stop(context.Background())
		return nil, err
	}

	return &internalApp{
		bootstrap: bootstrap,
		runtime:   rt,
		stopped:   make(chan struct{}),
	}, nil
}

// Runtime 返回已启动的运行时
func (a *internalApp) Runtime() *Runtime {
	return a.runtime
}

// Wait 等待退出信号
func (a *internalApp) Wait(ctx context.Context) {
	WaitSignal(ctx, a.stopped)
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.stopped)
		if stopErr := a.bootstrap.Stop(context.Background()); stopErr != nil {
			err = fmt.Errorf("停止应用失败: %w", stopErr)
		}
	})
	return err
}

// WaitSignal 阻塞直到收到 SIGINT/SIGTERM、ctx 结束或 done 关闭
//
// 启动冲突时进程也用它空转等待，而不是退出后被反复拉起。
func WaitSignal(ctx context.Context, done <-chan struct{}) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		log.Info("收到信号，正在退出", "signal", sig.String())
	case <-ctx.Done():
	case <-done:
	}
}
