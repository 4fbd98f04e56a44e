package metrics

// Stats 帧计数快照
//
// TotalIn 和 TotalOut 记录累计收发帧数，RateIn 和 RateOut 为最近 60 秒的
// 每秒平均帧数。
type Stats struct {
	TotalIn  int64   // 总入站帧
	TotalOut int64   // 总出站帧
	RateIn   float64 // 入站速率（帧/秒）
	RateOut  float64 // 出站速率（帧/秒）
}
