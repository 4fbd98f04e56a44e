// Package logger 提供 minithrottle 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（MINITHROTTLE_LOG_LEVEL, MINITHROTTLE_LOG_FORMAT）
//   - 运行时调整级别（诊断控制台 debug 命令）
//   - 附加输出（诊断控制台会话实时查看日志）
//
// 使用示例:
//
//	package relay
//
//	import "github.com/dep2p/go-minithrottle/internal/util/logger"
//
//	var log = logger.Logger("relay")
//
//	func foo() {
//	    log.Info("client connected", "slot", slot, "remote", addr)
//	    log.Debug("frame", "dir", "in", "frame", frame)
//	}
//
// 环境变量配置:
//
//	# 所有模块为 info，connmgr 为 debug
//	MINITHROTTLE_LOG_LEVEL=connmgr=debug,info
//
//	# JSON 输出
//	MINITHROTTLE_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler

	globalLogger     *slog.Logger
	globalLoggerOnce sync.Once
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	handler := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg.Format)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(handler))
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// GlobalLogger 返回全局 Logger
func GlobalLogger() *slog.Logger {
	globalLoggerOnce.Do(func() {
		globalLogger = Logger("minithrottle")
	})
	return globalLogger
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel 设置所有子系统的日志级别
//
// 同时修改默认级别，之后新建的子系统也使用该级别。
// 环境变量中单独配置的子系统保持其配置。
func SetGlobalLevel(level slog.Level) {
	cfg := ConfigFromEnv()
	globalOutputMu.Lock()
	cfg.DefaultLevel = level
	globalOutputMu.Unlock()

	handlers.Range(func(key, value any) bool {
		if _, pinned := cfg.SubsystemLevels[key.(string)]; !pinned {
			value.(*subsystemHandler).SetLevel(level)
		}
		return true
	})
}

// Subsystems 返回已创建的子系统名称
func Subsystems() []string {
	var names []string
	handlers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// Discard 返回一个丢弃所有日志的 Logger
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// With 创建带有预设属性的 Logger
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样生效。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// AddSink 增加一个附加输出，返回移除函数
func AddSink(w io.Writer) (remove func()) {
	globalOutputMu.Lock()
	sinkSeq++
	id := sinkSeq
	sinks[id] = w
	globalOutputMu.Unlock()

	return func() {
		globalOutputMu.Lock()
		delete(sinks, id)
		globalOutputMu.Unlock()
	}
}
