package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              状态显示
// ============================================================================

// logDisplay 把状态文本写入日志和诊断队列
//
// 设备上由屏幕渲染；这里只保留最近一次的状态供查询。
type logDisplay struct {
	bus *eventbus.Bus

	mu   sync.Mutex
	last []string
}

var _ interfaces.Display = (*logDisplay)(nil)

func newLogDisplay(bus *eventbus.Bus) *logDisplay {
	return &logDisplay{bus: bus}
}

// Status 显示若干行状态文本
func (d *logDisplay) Status(lines ...string) {
	d.mu.Lock()
	d.last = append(d.last[:0], lines...)
	d.mu.Unlock()

	text := strings.Join(lines, " / ")
	log.Info("状态", "text", text)
	d.bus.Diagf("status: %s", text)
}

// Last 最近一次显示的状态
func (d *logDisplay) Last() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.last...)
}

// ============================================================================
//                              变更队列消费
// ============================================================================

// updatePoll 等待变更的上限，超时后重新检查 ctx
const updatePoll = time.Second

// updatePump 消费共享状态变更队列
//
// 设备上这些变更驱动屏幕刷新；这里只记录日志，保持队列不被填满。
type updatePump struct {
	bus *eventbus.Bus

	cancel context.CancelFunc
	done   chan struct{}
}

func newUpdatePump(bus *eventbus.Bus) *updatePump {
	return &updatePump{bus: bus}
}

func (p *updatePump) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *updatePump) Stop(_ context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return nil
}

func (p *updatePump) run(ctx context.Context) {
	defer close(p.done)
	for {
		c, ok, err := p.bus.Updates.Receive(ctx, updatePoll)
		if err != nil {
			if !errors.Is(err, eventbus.ErrClosed) && ctx.Err() == nil {
				log.Warn("变更队列异常", "err", err)
			}
			return
		}
		if !ok {
			continue
		}
		log.Debug("状态变更", "kind", c.Kind.String(), "source", metrics.SourceLabel(c.Source))
		switch c.Kind {
		case types.ChangeLinkDown, types.ChangeLinkUp:
			if c.Message != "" {
				p.bus.Diagf("%s: %s", c.Kind, c.Message)
			}
		}
	}
}

// displayInput 显示组件的输入
type displayInput struct {
	fx.In

	Bus *eventbus.Bus
}

func provideDisplay(o *options) func(displayInput) interfaces.Display {
	return func(in displayInput) interfaces.Display {
		if o.display != nil {
			return o.display
		}
		return newLogDisplay(in.Bus)
	}
}

func registerUpdatePump(lc fx.Lifecycle, bus *eventbus.Bus) {
	p := newUpdatePump(bus)
	lc.Append(fx.Hook{
		OnStart: p.Start,
		OnStop:  p.Stop,
	})
}
