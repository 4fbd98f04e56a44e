package dispatch

import "errors"

var (
	// ErrCVTimeout 编程轨无应答
	ErrCVTimeout = errors.New("dispatch: cv reply timed out")

	// ErrCVFailed 指令站报告读写失败
	ErrCVFailed = errors.New("dispatch: cv operation failed")

	// ErrCVBusy 已有 CV 读写在等待应答
	ErrCVBusy = errors.New("dispatch: cv operation in progress")

	// ErrNoUpstream 尚未设置上游
	ErrNoUpstream = errors.New("dispatch: upstream not set")
)

// NotConnectedText 上游不可用时发给 WiThrottle 客户端的提示
const NotConnectedText = "Not connected to command station"
