package withrottle

import (
	"errors"
	"fmt"
	"strings"
)

// 分隔符
const (
	// FieldSep 主字段分隔符
	FieldSep = "]\\["
	// SubSep 子字段分隔符
	SubSep = "}|{"
	// ActionSep 手柄动作分隔符
	ActionSep = "<;>"
)

// 限制
const (
	// MaxFields 每帧最多字段数
	MaxFields = 64
	// MaxSubTokens 每个字段最多子字段数
	MaxSubTokens = 4
)

var (
	// ErrTooManyFields 字段数超限
	ErrTooManyFields = errors.New("withrottle: too many fields")
	// ErrTooManySubTokens 子字段数超限
	ErrTooManySubTokens = errors.New("withrottle: too many sub-tokens")
)

// Split 把帧拆为字段和子字段
//
// 第一个字段是记录头（如 "PTL"、"RL2"），其后为记录体。
func Split(frame string) ([][]string, error) {
	fields := strings.Split(frame, FieldSep)
	if len(fields) > MaxFields {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFields, len(fields), MaxFields)
	}
	out := make([][]string, len(fields))
	for i, f := range fields {
		sub := strings.Split(f, SubSep)
		if len(sub) > MaxSubTokens {
			return nil, fmt.Errorf("%w: field %d has %d", ErrTooManySubTokens, i, len(sub))
		}
		out[i] = sub
	}
	return out, nil
}

// Join 把字段和子字段拼回帧
func Join(fields [][]string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strings.Join(f, SubSep)
	}
	return strings.Join(parts, FieldSep)
}
