// Package withrottle 实现 WiThrottle 文本协议编解码
//
// 每帧一行，以首字符（或前缀）选择记录类型：
//
//	VN2.0                          协议版本
//	RL2]\[Big Boy}|{4014}|{L       机车名册
//	PPA1                           轨道电源
//	PTT / PTL / PTA                道岔标签 / 列表 / 状态
//	PRT / PRL / PRA                进路标签 / 列表 / 状态
//	PFT<秒><;><倍率>                快钟
//	*10                            心跳间隔协商
//	MTAL341<;>V50                  手柄动作
//	N<name> / HU<id> / Q           客户端名称 / 设备标识 / 退出
//
// 字段以 "]\[" 分隔，子字段以 "}|{" 分隔，手柄动作以 "<;>" 分隔。
// 每帧最多 64 个字段，每个字段最多 4 个子字段。
//
// 本包只做文本层面的编解码，不触碰共享状态。
package withrottle
