// Package dccex 实现 DCC-Ex 文本协议编解码
//
// 每帧以 "<" 开始、">" 结束，首个 token 为操作码：
//
//	<s>                     查询状态
//	<1 MAIN> / <0>          轨道电源
//	<t 3 50 1>              机车速度与方向
//	<F 3 0 1>               机车功能
//	<T 12 1>                道岔动作
//	<J T> / <jT 12 13>      列表查询与应答
//	<R 29 10812 22112>      读 CV
//	<l 3 0 179 1>           机车状态广播
//	<H 12 1>                道岔状态广播
//
// 大多数操作码为一个字符；'j'/'J' 后紧跟大写字母时组成两字符操作码。
// 带空格的参数以双引号括起。
//
// 本包只做文本层面的编解码，不触碰共享状态。
package dccex
