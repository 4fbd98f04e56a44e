package transport

import (
	"bytes"
	"errors"
)

// MaxFrameSize 单帧最大字节数
const MaxFrameSize = 1400

var (
	// ErrLinkClosed 链路已关闭
	ErrLinkClosed = errors.New("transport: link closed")

	// ErrNoService mDNS 未发现服务
	ErrNoService = errors.New("transport: no service found")

	// ErrNoAddress 未配置上游地址
	ErrNoAddress = errors.New("transport: no upstream address configured")
)

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == 0
}

// SplitFrames 切分帧
//
// 以 '<' 开头的帧延伸到第一个 '>'（含），其余帧延伸到换行（不含）。
// 帧间空白被跳过。超过 MaxFrameSize 仍无终止符的数据被丢弃，
// 此时返回空 token，调用方应忽略。
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && isSpace(data[start]) {
		start++
	}
	if start == len(data) {
		return len(data), nil, nil
	}

	rest := data[start:]
	var end, next int
	if rest[0] == '<' {
		i := bytes.IndexByte(rest, '>')
		if i < 0 {
			end = -1
		} else {
			end, next = i+1, i+1
		}
	} else {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			end = -1
		} else {
			end, next = i, i+1
		}
	}

	if end >= 0 {
		tok := bytes.TrimRight(rest[:end], "\r")
		if len(tok) > MaxFrameSize {
			return start + next, []byte{}, nil
		}
		return start + next, tok, nil
	}

	if len(rest) > MaxFrameSize {
		return len(data), []byte{}, nil
	}
	if atEOF {
		// 连接关闭前的残余数据按一帧处理
		return len(data), bytes.TrimRight(rest, "\r"), nil
	}
	return start, nil, nil
}
