package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
)

// FrameCounter 帧计数器
//
// FrameCounter 跟踪收发帧数，分全局与按来源两层，
// 使用原子操作实现并发安全的计数器。
type FrameCounter struct {
	clock clock.Clock

	totalIn  atomic.Int64
	totalOut atomic.Int64

	totalInRate  *RateMeter
	totalOutRate *RateMeter

	sourceMu      sync.RWMutex
	sourceIn      map[string]*atomic.Int64
	sourceOut     map[string]*atomic.Int64
	sourceInRate  map[string]*RateMeter
	sourceOutRate map[string]*RateMeter

	dropMu  sync.RWMutex
	dropped map[string]*atomic.Int64
}

// NewFrameCounter 创建帧计数器
func NewFrameCounter() *FrameCounter {
	return NewFrameCounterWithClock(clock.New())
}

// NewFrameCounterWithClock 使用指定时钟创建帧计数器
func NewFrameCounterWithClock(c clock.Clock) *FrameCounter {
	return &FrameCounter{
		clock:         c,
		totalInRate:   NewRateMeterWithClock(c),
		totalOutRate:  NewRateMeterWithClock(c),
		sourceIn:      make(map[string]*atomic.Int64),
		sourceOut:     make(map[string]*atomic.Int64),
		sourceInRate:  make(map[string]*RateMeter),
		sourceOutRate: make(map[string]*RateMeter),
		dropped:       make(map[string]*atomic.Int64),
	}
}

// counterFor 返回（必要时创建）来源计数器与速率计
func (fc *FrameCounter) counterFor(counters map[string]*atomic.Int64, rates map[string]*RateMeter, label string) (*atomic.Int64, *RateMeter) {
	fc.sourceMu.RLock()
	c, r := counters[label], rates[label]
	fc.sourceMu.RUnlock()
	if c != nil {
		return c, r
	}

	fc.sourceMu.Lock()
	defer fc.sourceMu.Unlock()
	if c = counters[label]; c == nil {
		c = &atomic.Int64{}
		r = NewRateMeterWithClock(fc.clock)
		counters[label] = c
		rates[label] = r
	}
	return c, rates[label]
}

// In 记录一帧入站
func (fc *FrameCounter) In(label string) {
	fc.totalIn.Add(1)
	fc.totalInRate.Add(1)
	c, r := fc.counterFor(fc.sourceIn, fc.sourceInRate, label)
	c.Add(1)
	r.Add(1)
}

// Out 记录一帧出站
func (fc *FrameCounter) Out(label string) {
	fc.totalOut.Add(1)
	fc.totalOutRate.Add(1)
	c, r := fc.counterFor(fc.sourceOut, fc.sourceOutRate, label)
	c.Add(1)
	r.Add(1)
}

// Drop 记录一帧丢弃
func (fc *FrameCounter) Drop(reason string) {
	fc.dropMu.RLock()
	c := fc.dropped[reason]
	fc.dropMu.RUnlock()
	if c == nil {
		fc.dropMu.Lock()
		if c = fc.dropped[reason]; c == nil {
			c = &atomic.Int64{}
			fc.dropped[reason] = c
		}
		fc.dropMu.Unlock()
	}
	c.Add(1)
}

// Totals 返回总帧数统计
func (fc *FrameCounter) Totals() Stats {
	return Stats{
		TotalIn:  fc.totalIn.Load(),
		TotalOut: fc.totalOut.Load(),
		RateIn:   fc.totalInRate.Rate(),
		RateOut:  fc.totalOutRate.Rate(),
	}
}

// BySource 返回按来源分类的帧统计
func (fc *FrameCounter) BySource() map[string]Stats {
	fc.sourceMu.RLock()
	defer fc.sourceMu.RUnlock()

	out := make(map[string]Stats, len(fc.sourceIn)+len(fc.sourceOut))
	for label, c := range fc.sourceIn {
		s := out[label]
		s.TotalIn = c.Load()
		s.RateIn = fc.sourceInRate[label].Rate()
		out[label] = s
	}
	for label, c := range fc.sourceOut {
		s := out[label]
		s.TotalOut = c.Load()
		s.RateOut = fc.sourceOutRate[label].Rate()
		out[label] = s
	}
	return out
}

// Dropped 返回按原因分类的丢弃计数
func (fc *FrameCounter) Dropped() map[string]int64 {
	fc.dropMu.RLock()
	defer fc.dropMu.RUnlock()

	out := make(map[string]int64, len(fc.dropped))
	for reason, c := range fc.dropped {
		out[reason] = c.Load()
	}
	return out
}

// Reset 重置所有统计
func (fc *FrameCounter) Reset() {
	fc.totalIn.Store(0)
	fc.totalOut.Store(0)
	fc.totalInRate.Reset()
	fc.totalOutRate.Reset()

	fc.sourceMu.Lock()
	fc.sourceIn = make(map[string]*atomic.Int64)
	fc.sourceOut = make(map[string]*atomic.Int64)
	fc.sourceInRate = make(map[string]*RateMeter)
	fc.sourceOutRate = make(map[string]*RateMeter)
	fc.sourceMu.Unlock()

	fc.dropMu.Lock()
	fc.dropped = make(map[string]*atomic.Int64)
	fc.dropMu.Unlock()
}
