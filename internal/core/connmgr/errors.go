package connmgr

import "errors"

// 连接管理器错误定义
var (
	// ErrNoDialer 未设置拨号器
	ErrNoDialer = errors.New("connmgr: no dialer set")

	// ErrNoHandler 未设置会话处理器
	ErrNoHandler = errors.New("connmgr: no session handler set")

	// ErrSessionKilled 会话被保活判定失效
	ErrSessionKilled = errors.New("connmgr: session killed")

	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("connmgr: manager closed")
)
