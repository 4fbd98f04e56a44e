package dccex

import "github.com/dep2p/go-minithrottle/pkg/types"

const (
	forwardBit     = 0x80
	speedMask      = 0x7f
	speedStop      = 0
	speedEmergency = 1
)

// EncodeSpeedByte 编码 <l> 广播中的速度字节
//
// bit7 为前进；低 7 位 0 为停止，1 为紧急停车，n+1 为速度 n。
func EncodeSpeedByte(speed int, dir types.Direction) int {
	var b int
	switch {
	case speed < 0:
		b = speedEmergency
	case speed == 0:
		b = speedStop
	default:
		if speed > types.MaxSpeed {
			speed = types.MaxSpeed
		}
		b = speed + 1
	}
	if dir != types.DirReverse {
		b |= forwardBit
	}
	return b
}

// DecodeSpeedByte 解码速度字节
func DecodeSpeedByte(b int) (speed int, dir types.Direction, estop bool) {
	dir = types.DirReverse
	if b&forwardBit != 0 {
		dir = types.DirForward
	}
	switch v := b & speedMask; v {
	case speedStop:
		return 0, dir, false
	case speedEmergency:
		return 0, dir, true
	default:
		return v - 1, dir, false
	}
}

// DirectionFlag <t> 命令中的方向参数
func DirectionFlag(dir types.Direction) int {
	if dir == types.DirReverse {
		return 0
	}
	return 1
}

// DirectionFromFlag 解析 <t> 命令中的方向参数
func DirectionFromFlag(v int) types.Direction {
	if v == 0 {
		return types.DirReverse
	}
	return types.DirForward
}
