// Package protocol 实现上游协议识别
//
// 子包 withrottle 与 dccex 负责具体的编解码，本包只根据链路上
// 最先出现的帧判断对端使用哪种协议。
//
// # 识别规则
//
//   - WiThrottle 服务器连接后主动发送 VN、RL、PPA、PW、HT、Ht 或 *<秒> 等记录
//   - DCC-Ex 指令站对 <s> 应答 <i...>、<p...>，也可能输出 <* ... *> 调试信息
//   - 其他以 '<' 开头、以 '>' 结尾的帧也按 DCC-Ex 处理
//
// 无法判断的帧返回 ProtocolUndefined，由调用方继续等待直到识别窗口结束。
package protocol

import (
	"errors"
	"strings"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// 协议模块错误定义
var (
	// ErrDetectTimeout 识别窗口内未收到可识别的帧
	ErrDetectTimeout = errors.New("protocol: detection window elapsed")
)

var withrottleBanners = []string{"VN", "RL", "PPA", "PW", "HT", "Ht", "PFT", "PTT", "PRT"}

// Detect 根据一帧判断协议
func Detect(frame string) types.Protocol {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return types.ProtocolUndefined
	}
	if frame[0] == '<' && frame[len(frame)-1] == '>' {
		return types.ProtocolDCCEx
	}
	for _, b := range withrottleBanners {
		if strings.HasPrefix(frame, b) {
			return types.ProtocolWiThrottle
		}
	}
	if frame[0] == '*' {
		if m, err := withrottle.Parse(frame); err == nil && m.Kind == withrottle.KindHeartbeatInterval {
			return types.ProtocolWiThrottle
		}
	}
	return types.ProtocolUndefined
}

// Probe 进入识别阶段时主动发送的探测帧
//
// WiThrottle 服务器会先发言，因此只有期望 DCC-Ex 时才需要探测。
func Probe(preferred types.Protocol) string {
	if preferred == types.ProtocolDCCEx {
		return dccex.Status()
	}
	return ""
}

// Keepalive 返回协议的心跳帧
func Keepalive(p types.Protocol) string {
	switch p {
	case types.ProtocolWiThrottle:
		return withrottle.Heartbeat()
	case types.ProtocolDCCEx:
		return dccex.Keepalive()
	default:
		return ""
	}
}
