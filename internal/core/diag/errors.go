package diag

import "errors"

var (
	// ErrQuit 会话请求退出
	ErrQuit = errors.New("diag: quit")
	// ErrUnknownCommand 未知命令
	ErrUnknownCommand = errors.New("diag: unknown command")
	// ErrUsage 命令参数错误
	ErrUsage = errors.New("diag: usage")
	// ErrNoStore 未提供配置存储
	ErrNoStore = errors.New("diag: no config store")
)
