package withrottle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// 手柄动作操作符
const (
	OpAdd    byte = '+'
	OpRemove byte = '-'
	OpAction byte = 'A'
	OpSteal  byte = 'S'
	OpLabels byte = 'L'
)

// 动作命令字符
const (
	CmdVelocity      byte = 'V'
	CmdDirection     byte = 'R'
	CmdFunction      byte = 'F'
	CmdForceFunction byte = 'f'
	CmdEStop         byte = 'X'
	CmdIdle          byte = 'I'
	CmdQuery         byte = 'q'
	CmdRelease       byte = 'r'
	CmdDispatch      byte = 'd'
	CmdMomentary     byte = 'm'
	CmdSpeedSteps    byte = 's'
)

// AllLocos 作用于手柄下全部机车的键
const AllLocos = "*"

// ThrottleAction 手柄动作 "M<throttle><op><key><;><payload>"
type ThrottleAction struct {
	Throttle byte
	Op       byte
	Key      string
	Payload  string
}

// ParseThrottleAction 解析手柄动作帧
func ParseThrottleAction(frame string) (ThrottleAction, error) {
	head, payload, ok := strings.Cut(frame, ActionSep)
	if !ok || len(head) < 3 || head[0] != 'M' {
		return ThrottleAction{}, fmt.Errorf("%w: throttle %q", types.ErrMalformedFrame, frame)
	}
	a := ThrottleAction{
		Throttle: head[1],
		Op:       head[2],
		Key:      head[3:],
		Payload:  payload,
	}
	switch a.Op {
	case OpAdd, OpRemove, OpAction, OpSteal, OpLabels:
	default:
		return a, fmt.Errorf("%w: throttle op %q", types.ErrUnknownFrame, a.Op)
	}
	if a.Key == "" {
		return a, fmt.Errorf("%w: throttle key missing", types.ErrMalformedFrame)
	}
	return a, nil
}

// All 是否作用于手柄下全部机车
func (a ThrottleAction) All() bool { return a.Key == AllLocos }

// Address 解析键中的机车地址
func (a ThrottleAction) Address() (uint16, types.AddressKind, error) {
	return types.ParseAddress(a.Key)
}

// Command 返回载荷的命令字符与参数
func (a ThrottleAction) Command() (byte, string) {
	if a.Payload == "" {
		return 0, ""
	}
	return a.Payload[0], a.Payload[1:]
}

// Speed 解析 V 命令的速度
func (a ThrottleAction) Speed() (int, error) {
	cmd, arg := a.Command()
	if cmd != CmdVelocity {
		return 0, fmt.Errorf("%w: not a velocity", types.ErrMalformedFrame)
	}
	v, err := strconv.Atoi(arg)
	if err != nil || v < -1 || v > types.MaxSpeed {
		return 0, fmt.Errorf("%w: speed %q", types.ErrMalformedFrame, arg)
	}
	return v, nil
}

// Direction 解析 R 命令的方向
func (a ThrottleAction) Direction() (types.Direction, error) {
	cmd, arg := a.Command()
	if cmd != CmdDirection {
		return types.DirUnchanged, fmt.Errorf("%w: not a direction", types.ErrMalformedFrame)
	}
	switch arg {
	case "1":
		return types.DirForward, nil
	case "0":
		return types.DirReverse, nil
	default:
		return types.DirUnchanged, fmt.Errorf("%w: direction %q", types.ErrMalformedFrame, arg)
	}
}

// Function 解析 F/f 命令
//
// 返回功能号与状态位：F 命令中为按下/松开，f 命令中为强制开/关。
func (a ThrottleAction) Function() (fn int, on bool, err error) {
	cmd, arg := a.Command()
	if (cmd != CmdFunction && cmd != CmdForceFunction) || len(arg) < 2 {
		return 0, false, fmt.Errorf("%w: function %q", types.ErrMalformedFrame, a.Payload)
	}
	fn, err = strconv.Atoi(arg[1:])
	if err != nil || fn < 0 || fn >= types.MaxFunctions {
		return 0, false, fmt.Errorf("%w: function %q", types.ErrInvalidFunction, arg[1:])
	}
	return fn, arg[0] == '1', nil
}

// Labels 解析 L 动作载荷中的功能标签
func (a ThrottleAction) Labels() []string {
	if !strings.HasPrefix(a.Payload, FieldSep) {
		return nil
	}
	return strings.Split(a.Payload[len(FieldSep):], FieldSep)
}
