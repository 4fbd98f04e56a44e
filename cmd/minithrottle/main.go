// Package main 提供 miniThrottle 网关进程
//
// 网关连接一台 WiThrottle 或 DCC-Ex 指令站，把会话共享给中继客户端，
// 并提供诊断控制台。
//
// 使用方法:
//
//	go run ./cmd/minithrottle -server 192.168.4.1:2560 -data ./data
//
// 或直连串口（只支持 DCC-Ex）:
//
//	go run ./cmd/minithrottle -serial /dev/ttyUSB0
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-minithrottle/internal/app"
	"github.com/dep2p/go-minithrottle/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 解析命令行参数
	server := flag.String("server", "", "指令站地址 host:port（为空时使用存储的配置或 mDNS）")
	serialDev := flag.String("serial", "", "串口设备，设置后直连 DCC-Ex 指令站")
	dataDir := flag.String("data", "", "配置存储目录（为空时使用内存存储）")
	metricsAddr := flag.String("metrics", "", "Prometheus /metrics 监听地址")
	introspectAddr := flag.String("introspect", "", "JSON 自省与 pprof 监听地址，如 127.0.0.1:6060")
	statsEvery := flag.Duration("stats", 30*time.Second, "统计输出间隔，0 表示不输出")
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            miniThrottle Gateway                      ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获中断信号
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		fmt.Printf("\n收到信号 %v，正在关闭...\n", sig)
		cancel()
	}()

	b, err := app.NewBootstrap(
		app.WithServer(*server),
		app.WithSerialDevice(*serialDev),
		app.WithDataDir(*dataDir),
		app.WithMetricsAddr(*metricsAddr),
		app.WithIntrospectAddr(*introspectAddr),
	)
	if err == nil {
		var a app.App
		a, err = app.RunApp(ctx, b)
		if err == nil {
			defer func() { _ = a.Stop() }()
			printInfo(a.Runtime())
			if *statsEvery > 0 {
				go reportStats(ctx, a.Runtime(), *statsEvery)
			}
			<-ctx.Done()
			fmt.Println("\n正在关闭网关...")
			return nil
		}
	}

	// 启动冲突时空转等待信号，避免被守护进程反复拉起
	if errors.Is(err, config.ErrStartupConflict) {
		fmt.Printf("⚠️  启动冲突: %v\n", err)
		fmt.Println("修改配置后重启；按 Ctrl+C 退出")
		<-ctx.Done()
	}
	return err
}

// printInfo 打印网关信息
func printInfo(rt *app.Runtime) {
	cfg := rt.Config
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                    网关信息                           ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║ 名称: %s\n", cfg.Name)
	switch cfg.Upstream.Transport {
	case config.TransportSerial:
		fmt.Printf("║ 上游: 串口 %s\n", cfg.Upstream.SerialDevice)
	default:
		if cfg.Upstream.Address != "" {
			fmt.Printf("║ 上游: %s\n", cfg.Upstream.Address)
		} else {
			fmt.Println("║ 上游: mDNS 发现")
		}
	}
	if rt.Relay != nil {
		fmt.Printf("║ 中继: %s %s（最多 %d 个客户端）\n", cfg.Relay.Mode, rt.Relay.Addr(), cfg.Relay.MaxClients)
	} else {
		fmt.Println("║ 中继: 未启用")
	}
	if rt.Diag != nil {
		fmt.Printf("║ 诊断: %s\n", rt.Diag.Addr())
	}
	if cfg.Metrics.Addr != "" {
		fmt.Printf("║ 指标: http://%s/metrics\n", cfg.Metrics.Addr)
	}
	if rt.Introspect != nil {
		fmt.Printf("║ 自省: http://%s/debug/introspect\n", rt.Introspect.Addr())
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("按 Ctrl+C 停止网关")
}

// reportStats 定期报告统计信息
func reportStats(ctx context.Context, rt *app.Runtime, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := rt.Metrics.Totals()
			fmt.Printf("[Stats] 上游: %s  帧 入 %d 出 %d  重连 %d  中继拒绝 %d\n",
				rt.Manager.State(), t.TotalIn, t.TotalOut,
				rt.Metrics.Reconnects(), rt.Metrics.RelayRefused())
		}
	}
}
