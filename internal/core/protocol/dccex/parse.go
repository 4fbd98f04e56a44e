package dccex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// 回调编号，读写 CV 时由指令站原样返回
const (
	CallbackNum = 10812
	CallbackSub = 22112
)

// Command 解析后的一帧
type Command struct {
	// Op 操作码（"t"、"jT"、"JC" 等）
	Op string

	// Args 参数，引号已去除
	Args []string

	// Text 操作码之后的原始文本（用于 <i...>、<* ... *> 等自由文本）
	Text string

	// Raw 原始帧
	Raw string
}

// Parse 解析一帧
func Parse(frame string) (Command, error) {
	frame = strings.TrimSpace(frame)
	c := Command{Raw: frame}
	if len(frame) < 3 || frame[0] != '<' || frame[len(frame)-1] != '>' {
		return c, fmt.Errorf("%w: %q", types.ErrMalformedFrame, frame)
	}
	body := frame[1 : len(frame)-1]

	opLen := 1
	if (body[0] == 'j' || body[0] == 'J') && len(body) > 1 && body[1] >= 'A' && body[1] <= 'Z' {
		opLen = 2
	}
	c.Op = body[:opLen]
	c.Text = strings.TrimSpace(body[opLen:])

	args, err := Tokenize(c.Text)
	if err != nil {
		return c, err
	}
	c.Args = args
	return c, nil
}

// Tokenize 按空白拆分，双引号内的空白保留
func Tokenize(s string) ([]string, error) {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
		inTok  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			quoted = !quoted
			inTok = true
		case !quoted && (ch == ' ' || ch == '\t'):
			if inTok {
				out = append(out, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteByte(ch)
			inTok = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote", types.ErrMalformedFrame)
	}
	if inTok {
		out = append(out, cur.String())
	}
	return out, nil
}

// Arg 返回第 i 个参数，越界返回空串
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Int 返回第 i 个参数的整数值
func (c Command) Int(i int) (int, error) {
	if i >= len(c.Args) {
		return 0, fmt.Errorf("%w: %s missing arg %d", types.ErrMalformedFrame, c.Op, i)
	}
	v, err := strconv.Atoi(c.Args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s arg %d %q", types.ErrMalformedFrame, c.Op, i, c.Args[i])
	}
	return v, nil
}

// Ints 返回全部参数的整数值
func (c Command) Ints() ([]int, error) {
	out := make([]int, len(c.Args))
	for i := range c.Args {
		v, err := c.Int(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ============================================================================
//                              CV 应答
// ============================================================================

// ParseCVReply 解析 <r ...> 与 <v ...> 应答
//
// 支持 "<r 10812|22112|29 3>"、"<r 3>"（地址读取）和 "<v 29 3>"。
func ParseCVReply(c Command) (types.CVResult, error) {
	switch c.Op {
	case "r":
		if len(c.Args) == 1 {
			v, err := c.Int(0)
			if err != nil {
				return types.CVResult{}, err
			}
			return types.CVResult{CV: 0, Value: v}, nil
		}
		if len(c.Args) != 2 {
			return types.CVResult{}, fmt.Errorf("%w: %q", types.ErrMalformedFrame, c.Raw)
		}
		parts := strings.Split(c.Args[0], "|")
		cvText := parts[len(parts)-1]
		cv, err := strconv.Atoi(cvText)
		if err != nil {
			return types.CVResult{}, fmt.Errorf("%w: cv %q", types.ErrMalformedFrame, cvText)
		}
		v, err := c.Int(1)
		if err != nil {
			return types.CVResult{}, err
		}
		return types.CVResult{CV: cv, Value: v}, nil
	case "v":
		cv, err := c.Int(0)
		if err != nil {
			return types.CVResult{}, err
		}
		v, err := c.Int(1)
		if err != nil {
			return types.CVResult{}, err
		}
		return types.CVResult{CV: cv, Value: v}, nil
	}
	return types.CVResult{}, fmt.Errorf("%w: not a cv reply %q", types.ErrUnknownFrame, c.Raw)
}

// ============================================================================
//                              标识转换
// ============================================================================

// NumericID 从系统名中取出 DCC-Ex 数字标识
//
// "12" -> 12，"LT12" -> 12；没有尾部数字时返回 false。
func NumericID(sysName string) (int, bool) {
	i := len(sysName)
	for i > 0 && sysName[i-1] >= '0' && sysName[i-1] <= '9' {
		i--
	}
	if i == len(sysName) {
		return 0, false
	}
	v, err := strconv.Atoi(sysName[i:])
	if err != nil {
		return 0, false
	}
	return v, true
}
