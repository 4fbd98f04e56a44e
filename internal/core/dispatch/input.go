package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// inputPoll 输入泵等待事件的上限，超时后重新检查 ctx
const inputPoll = time.Second

// RunInputs 消费本地输入事件直到 ctx 结束或队列关闭
func (d *Dispatcher) RunInputs(ctx context.Context) {
	for {
		ev, ok, err := d.bus.Inputs.Receive(ctx, inputPoll)
		if err != nil {
			if !errors.Is(err, eventbus.ErrClosed) && ctx.Err() == nil {
				log.Warn("输入队列异常", "err", err)
			}
			return
		}
		if !ok {
			continue
		}
		if err := d.ApplyInput(ctx, ev); err != nil {
			log.Debug("输入事件未生效", "kind", ev.Kind.String(), "throttle", ev.Throttle, "err", err)
			d.bus.Diagf("input %s on throttle %d: %v", ev.Kind, ev.Throttle, err)
		}
	}
}

// ApplyInput 执行一个本地输入事件
func (d *Dispatcher) ApplyInput(ctx context.Context, ev types.InputEvent) error {
	switch ev.Kind {
	case types.InputSpeed:
		return d.SetSpeed(ctx, ev.Throttle, ev.Value)
	case types.InputDirection:
		dir := types.Direction(ev.Value)
		if dir == types.DirUnchanged || dir == types.DirStop {
			return d.ToggleDirection(ctx, ev.Throttle)
		}
		return d.SetDirection(ctx, ev.Throttle, dir)
	case types.InputFunction:
		return d.PressFunction(ctx, ev.Throttle, ev.Value, true)
	case types.InputEStop:
		if ev.Throttle < 0 {
			return d.EStopAll(ctx)
		}
		return d.SetSpeed(ctx, ev.Throttle, -1)
	case types.InputPowerToggle:
		return d.TogglePower(ctx)
	case types.InputAcquire:
		if ev.Value < 0 || ev.Value > types.MaxLongAddress {
			return types.ErrInvalidAddress
		}
		_, err := d.AcquireLoco(ctx, ev.Throttle, uint16(ev.Value))
		return err
	case types.InputRelease:
		if ev.Value < 0 || ev.Value > types.MaxLongAddress {
			return types.ErrInvalidAddress
		}
		return d.ReleaseLoco(ctx, ev.Throttle, uint16(ev.Value))
	}
	return types.ErrUnsupported
}
