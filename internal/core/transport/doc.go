// Package transport 实现上游与中继使用的帧链路
//
// # 组成
//
//   - SplitFrames - bufio.SplitFunc，切分 "<...>" 帧与换行结尾的文本行
//   - FrameLink   - 在任意 io.ReadWriteCloser 上实现 interfaces.Link
//   - StaticDialer - 固定 host:port 的 TCP 拨号
//   - MDNSDialer   - 通过 mDNS 发现 _withrottle._tcp / _dccex._tcp 服务
//   - SerialDialer - 直连串口
//
// NewDialer 根据配置选择拨号策略。
//
// # 帧大小
//
// 单帧最长 MaxFrameSize 字节，超长数据被丢弃直到下一个终止符，
// 链路本身不因此中断。
package transport
